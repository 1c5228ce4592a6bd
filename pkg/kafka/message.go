package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/google/uuid"
)

// MessageType names an inbound settlement command
type MessageType string

const (
	SaleCompleted        MessageType = "sale.completed"
	RefundRequested      MessageType = "refund.requested"
	PayoutConfirmed      MessageType = "payout.confirmed"
	IntermediaryUpserted MessageType = "intermediary.upserted"
)

// Envelope is the wire format of every command on the settlement topic.
type Envelope struct {
	Type MessageType     `json:"type" validate:"required,oneof=sale.completed refund.requested payout.confirmed intermediary.upserted"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// Header is a single Kafka header
type Header struct {
	Key   string
	Value []byte
}

// MessageHeaders are the headers the consumer understands
type MessageHeaders struct {
	Type        string
	Actor       string
	TraceParent string
	TraceState  string
}

func ExtractHeaders(headers []Header) MessageHeaders {
	var mh MessageHeaders
	for _, h := range headers {
		switch h.Key {
		case "type":
			mh.Type = string(h.Value)
		case "actor":
			mh.Actor = string(h.Value)
		case "traceparent":
			mh.TraceParent = string(h.Value)
		case "tracestate":
			mh.TraceState = string(h.Value)
		}
	}
	return mh
}

// ParseEnvelope decodes and validates a command envelope
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.NewInvalidInput("message", "not a valid JSON envelope: %s", err.Error())
	}
	if _, err := utils.Validate(env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Decode unmarshals the envelope payload into T and validates it
func Decode[T any](env *Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, apperrors.NewInvalidInput("data", "invalid %s payload: %s", env.Type, err.Error())
	}
	return utils.Validate(v)
}

// SaleCompletedMessage is published by the marketplace when a buyer pays.
type SaleCompletedMessage = models.SaleInput

type RefundRequestedMessage struct {
	SaleID string `json:"sale_id" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type PayoutConfirmedMessage struct {
	CommissionID string    `json:"commission_id" validate:"required,uuid"`
	PayoutRef    string    `json:"payout_ref" validate:"required"`
	PaidAt       time.Time `json:"paid_at"`
}

func (m PayoutConfirmedMessage) ID() uuid.UUID {
	return uuid.MustParse(m.CommissionID)
}

type IntermediaryUpsertedMessage struct {
	ID           string `json:"id" validate:"required"`
	SponsorID    string `json:"sponsor_id"`
	ReferralCode string `json:"referral_code"`
	Active       *bool  `json:"active"`
}

func (m IntermediaryUpsertedMessage) ToIntermediary() models.Intermediary {
	active := true
	if m.Active != nil {
		active = *m.Active
	}
	return models.Intermediary{
		ID:           m.ID,
		SponsorID:    m.SponsorID,
		ReferralCode: m.ReferralCode,
		Active:       active,
	}
}

// DeadLetter wraps a command that can never be applied
type DeadLetter struct {
	Topic     string          `json:"topic"`
	Partition int             `json:"partition"`
	Offset    int64           `json:"offset"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failed_at"`
}

func newDeadLetter(msg *ReceivedMessage, cause error, at time.Time) DeadLetter {
	value := json.RawMessage(msg.Value)
	if !json.Valid(msg.Value) {
		quoted, _ := json.Marshal(string(msg.Value))
		value = quoted
	}
	return DeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     value,
		Error:     fmt.Sprint(cause),
		FailedAt:  at,
	}
}
