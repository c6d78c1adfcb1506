package types

import "strings"

type Classification string

const (
	ClassificationNew       Classification = "NEW"
	ClassificationQualified Classification = "QUALIFIED"
	ClassificationWarm      Classification = "WARM"
	ClassificationCustomer  Classification = "CUSTOMER"
	ClassificationChurned   Classification = "CHURNED"
	ClassificationVIP       Classification = "VIP"
)

var Classifications = []Classification{
	ClassificationNew,
	ClassificationQualified,
	ClassificationWarm,
	ClassificationCustomer,
	ClassificationChurned,
	ClassificationVIP,
}

// ParseClassification accepts any casing and reports false for unknown values.
func ParseClassification(s string) (Classification, bool) {
	c := Classification(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Classifications {
		if c == known {
			return c, true
		}
	}
	return "", false
}

type Stage string

const (
	StageIdle                 Stage = "IDLE"
	StageQualification       Stage = "QUALIFICATION"
	StageProblemAmplification Stage = "PROBLEM_AMPLIFICATION"
	StageSolutionPresentation Stage = "SOLUTION_PRESENTATION"
	StageClosing              Stage = "CLOSING"
)

func (s Stage) Valid() bool {
	switch s {
	case StageIdle, StageQualification, StageProblemAmplification, StageSolutionPresentation, StageClosing:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue    SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled   SubscriptionStatus = "CANCELED"
	SubscriptionIncomplete SubscriptionStatus = "INCOMPLETE"
	SubscriptionTrialing   SubscriptionStatus = "TRIALING"
)

// Entitled reports whether the status still grants channel access.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionActive || s == SubscriptionPastDue || s == SubscriptionTrialing
}

type ResourceType string

const (
	ResourceChannelInvite ResourceType = "CHANNEL_INVITE"
	ResourceDocument      ResourceType = "DOCUMENT"
	ResourceMeetingLink   ResourceType = "MEETING_LINK"
)

type Role string

const (
	RoleLead      Role = "lead"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)
