package funnel

import (
	"context"
	"errors"
	"fmt"

	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

// HistoryLimit is how many conversation entries are passed to generation.
const HistoryLimit = 10

type Sessions interface {
	Get(ctx context.Context, leadID int64) (types.SessionState, error)
	Set(ctx context.Context, state types.SessionState) error
	Clear(ctx context.Context, leadID int64) (types.SessionState, error)
}

type Leads interface {
	UpsertLead(ctx context.Context, lead types.Lead) (*types.Lead, error)
	GetLead(ctx context.Context, leadID int64) (*types.Lead, error)
	SaveQualification(ctx context.Context, leadID int64, scratch types.Scratch, score int, classification types.Classification) error
	SavePainPoints(ctx context.Context, leadID int64, painPoints []string) error
}

type GenerationRequest struct {
	Message string
	Stage   types.Stage
	Lead    types.Lead
	Scratch types.Scratch
	History []types.ConversationEntry
}

// Generator produces the persuasive reply for a stage.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, leadID int64, planID string) (string, error)
}

type Inbound struct {
	LeadID       int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	Input        Input
}

type ReplyKind string

const (
	ReplyWelcome   ReplyKind = "welcome"
	ReplyAsk       ReplyKind = "ask"
	ReplyGenerated ReplyKind = "generated"
	ReplyOffer     ReplyKind = "offer"
	ReplyReset     ReplyKind = "reset"
)

type Reply struct {
	Kind   ReplyKind
	Field  Field
	Text   string
	PlanID string
	URL    string
}

type Result struct {
	Replies  []Reply
	Previous types.Stage
	State    types.SessionState
	Lead     *types.Lead
}

type Engine struct {
	machine       Machine
	sessions      Sessions
	leads         Leads
	conversations types.ConversationStore
	generator     Generator
	checkout      CheckoutCreator
	locks         *leadLocks
	metrics       *metrics.Metrics
	logger        *logging.Logger
}

type EngineConfig struct {
	Machine       Machine
	Sessions      Sessions
	Leads         Leads
	Conversations types.ConversationStore
	Generator     Generator
	Checkout      CheckoutCreator
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Machine.PainKeywords == nil {
		cfg.Machine = NewMachine(cfg.Machine.Classifier.Threshold)
	}
	return &Engine{
		machine:       cfg.Machine,
		sessions:      cfg.Sessions,
		leads:         cfg.Leads,
		conversations: cfg.Conversations,
		generator:     cfg.Generator,
		checkout:      cfg.Checkout,
		locks:         newLeadLocks(),
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// Handle runs one turn for a lead. Turns for the same lead run one at a
// time in arrival order. On error nothing about the stage has changed.
func (e *Engine) Handle(ctx context.Context, in Inbound) (*Result, error) {
	unlock := e.locks.Lock(in.LeadID)
	defer unlock()

	state, err := e.sessions.Get(ctx, in.LeadID)
	if err != nil {
		e.metrics.ObserveTurn(string(types.StageIdle), "store_error")
		return nil, fmt.Errorf("funnel: load session: %w", err)
	}

	decision := e.machine.Step(state, in.Input)
	res, err := e.apply(ctx, in, state, decision)
	if err != nil {
		e.metrics.ObserveTurn(string(state.Stage), "error")
		e.logger.Error("funnel turn failed", "lead_id", in.LeadID, "stage", state.Stage, "error", err)
		return nil, err
	}
	e.metrics.ObserveTurn(string(state.Stage), "ok")
	e.metrics.ObserveTransition(string(state.Stage), string(res.State.Stage))
	return res, nil
}

func (e *Engine) apply(ctx context.Context, in Inbound, prev types.SessionState, d Decision) (*Result, error) {
	res := &Result{Previous: prev.Stage, State: d.Next}

	if d.Has(EffectReset) {
		cleared, err := e.sessions.Clear(ctx, in.LeadID)
		if err != nil {
			return nil, fmt.Errorf("funnel: reset: %w", err)
		}
		res.State = cleared
		res.Replies = append(res.Replies, Reply{Kind: ReplyReset})
		return res, nil
	}

	lead, err := e.loadLead(ctx, in, d.Has(EffectUpsertLead))
	if err != nil {
		return nil, err
	}
	res.Lead = lead

	var generated string
	if gen, ok := d.Effect(EffectGenerate); ok {
		profile := *lead
		applyScratch(&profile, d.Next.Scratch)
		generated, err = e.generate(ctx, in, gen.Stage, profile, d.Next.Scratch)
		if err != nil {
			return nil, err
		}
	}

	if q, ok := d.Effect(EffectQualified); ok {
		if err := e.leads.SaveQualification(ctx, in.LeadID, d.Next.Scratch, q.Score, q.Classification); err != nil {
			return nil, fmt.Errorf("funnel: save qualification: %w", err)
		}
		applyScratch(lead, d.Next.Scratch)
		lead.Score = q.Score
		lead.Classification = q.Classification
		e.logger.Info("lead qualified", "lead_id", in.LeadID, "score", q.Score, "classification", q.Classification)
	}
	if d.Has(EffectPainPoint) {
		if err := e.leads.SavePainPoints(ctx, in.LeadID, d.Next.Scratch.PainPoints); err != nil {
			return nil, fmt.Errorf("funnel: save pain points: %w", err)
		}
		lead.PainPoints = append([]string(nil), d.Next.Scratch.PainPoints...)
	}

	if err := e.sessions.Set(ctx, d.Next); err != nil {
		return nil, fmt.Errorf("funnel: save session: %w", err)
	}

	for _, eff := range d.Effects {
		switch eff.Kind {
		case EffectWelcome:
			res.Replies = append(res.Replies, Reply{Kind: ReplyWelcome})
		case EffectAsk:
			res.Replies = append(res.Replies, Reply{Kind: ReplyAsk, Field: eff.Field})
		case EffectGenerate:
			res.Replies = append(res.Replies, Reply{Kind: ReplyGenerated, Text: generated})
		case EffectOffer:
			if r, ok := e.offer(ctx, in.LeadID, eff.PlanID); ok {
				res.Replies = append(res.Replies, r)
			}
		}
	}

	e.record(ctx, in, generated)
	return res, nil
}

func (e *Engine) loadLead(ctx context.Context, in Inbound, upsert bool) (*types.Lead, error) {
	if !upsert {
		lead, err := e.leads.GetLead(ctx, in.LeadID)
		if err == nil {
			return lead, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("funnel: load lead: %w", err)
		}
	}
	lead, err := e.leads.UpsertLead(ctx, types.Lead{
		ID:           in.LeadID,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		LanguageCode: in.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("funnel: upsert lead: %w", err)
	}
	return lead, nil
}

func (e *Engine) generate(ctx context.Context, in Inbound, stage types.Stage, lead types.Lead, scratch types.Scratch) (string, error) {
	if e.generator == nil {
		return "", fmt.Errorf("funnel: %w: no generator configured", types.ErrCollaboratorUnavailable)
	}
	history := e.history(ctx, in.LeadID)
	text, err := e.generator.Generate(ctx, GenerationRequest{
		Message: in.Input.Text,
		Stage:   stage,
		Lead:    lead,
		Scratch: scratch,
		History: history,
	})
	if err != nil {
		if !errors.Is(err, types.ErrCollaboratorUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrCollaboratorUnavailable, err)
		}
		return "", fmt.Errorf("funnel: generate: %w", err)
	}
	return text, nil
}

func (e *Engine) history(ctx context.Context, leadID int64) []types.ConversationEntry {
	if e.conversations == nil {
		return nil
	}
	entries, err := e.conversations.RecentConversation(ctx, leadID, HistoryLimit)
	if err != nil {
		e.logger.Warn("conversation history unavailable", "lead_id", leadID, "error", err)
		return nil
	}
	return entries
}

func (e *Engine) offer(ctx context.Context, leadID int64, planID string) (Reply, bool) {
	if e.checkout == nil {
		e.logger.Warn("no checkout configured, skipping offer", "lead_id", leadID, "plan_id", planID)
		return Reply{}, false
	}
	url, err := e.checkout.CreateCheckout(ctx, leadID, planID)
	if err != nil {
		e.logger.Error("checkout creation failed", "lead_id", leadID, "plan_id", planID, "error", err)
		return Reply{}, false
	}
	return Reply{Kind: ReplyOffer, PlanID: planID, URL: url}, true
}

func (e *Engine) record(ctx context.Context, in Inbound, generated string) {
	if e.conversations == nil {
		return
	}
	if in.Input.Kind == InputText && in.Input.Text != "" {
		if err := e.conversations.AppendConversation(ctx, types.ConversationEntry{LeadID: in.LeadID, Role: types.RoleLead, Text: in.Input.Text}); err != nil {
			e.logger.Warn("conversation append failed", "lead_id", in.LeadID, "error", err)
		}
	}
	if generated != "" {
		if err := e.conversations.AppendConversation(ctx, types.ConversationEntry{LeadID: in.LeadID, Role: types.RoleAssistant, Text: generated}); err != nil {
			e.logger.Warn("conversation append failed", "lead_id", in.LeadID, "error", err)
		}
	}
}

// Answer generates a stage-flavoured reply without touching the session.
// The club channel uses it for member questions.
func (e *Engine) Answer(ctx context.Context, lead types.Lead, stage types.Stage, question string) (string, error) {
	in := Inbound{LeadID: lead.ID, Input: Input{Kind: InputText, Text: question}}
	scratch := types.Scratch{Niche: lead.Niche, Revenue: lead.Revenue, TeamSize: lead.TeamSize, PainPoints: lead.PainPoints}
	text, err := e.generate(ctx, in, stage, lead, scratch)
	if err != nil {
		return "", err
	}
	e.record(ctx, in, text)
	return text, nil
}

// MoveTo sets the lead's stage from outside a turn, keeping the scratch.
// Payment activation uses it to move a buyer into CLOSING.
func (e *Engine) MoveTo(ctx context.Context, leadID int64, stage types.Stage) error {
	unlock := e.locks.Lock(leadID)
	defer unlock()

	state, err := e.sessions.Get(ctx, leadID)
	if err != nil {
		return fmt.Errorf("funnel: load session: %w", err)
	}
	from := state.Stage
	state.Stage = stage
	if err := e.sessions.Set(ctx, state); err != nil {
		return fmt.Errorf("funnel: save session: %w", err)
	}
	e.metrics.ObserveTransition(string(from), string(stage))
	return nil
}

func applyScratch(lead *types.Lead, s types.Scratch) {
	if s.Niche != "" {
		lead.Niche = s.Niche
	}
	if s.Revenue != "" {
		lead.Revenue = s.Revenue
	}
	if s.TeamSize != "" {
		lead.TeamSize = s.TeamSize
	}
	if len(s.PainPoints) > 0 {
		lead.PainPoints = append([]string(nil), s.PainPoints...)
	}
}
