package types

import "time"

// Scratch is the data collected while a lead moves through qualification.
type Scratch struct {
	Niche      string   `json:"niche,omitempty"`
	Revenue    string   `json:"revenue,omitempty"`
	TeamSize   string   `json:"team_size,omitempty"`
	PainPoints []string `json:"pain_points,omitempty"`
}

func (s Scratch) Clone() Scratch {
	out := s
	if s.PainPoints != nil {
		out.PainPoints = append([]string(nil), s.PainPoints...)
	}
	return out
}

type SessionState struct {
	LeadID    int64     `json:"lead_id"`
	Stage     Stage     `json:"stage"`
	Scratch   Scratch   `json:"scratch"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdleSession is the state of a lead with no stored session.
func IdleSession(leadID int64) SessionState {
	return SessionState{LeadID: leadID, Stage: StageIdle}
}

type ConversationEntry struct {
	LeadID    int64     `json:"lead_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
