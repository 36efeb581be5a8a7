package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	domrepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	pkgkafka "github.com/jtorres-1/mirror-trade/pkg/kafka"
	"github.com/jtorres-1/mirror-trade/pkg/util"
)

// KafkaAlertsHandler consumes chat messages published to Kafka and feeds them to the intake.
type KafkaAlertsHandler struct {
	topic   string
	intake  *SignalIntake
	metrics domrepo.Metrics
}

func NewKafkaAlertsHandler(topic string, intake *SignalIntake, metrics domrepo.Metrics) *KafkaAlertsHandler {
	return &KafkaAlertsHandler{topic: topic, intake: intake, metrics: metrics}
}

func (h *KafkaAlertsHandler) Topic() string { return h.topic }

// incoming message schema: {id, text, sent_at, edited}
func (h *KafkaAlertsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID     string `json:"id"`
		Text   string `json:"text"`
		SentAt string `json:"sent_at"`
		Edited bool   `json:"edited"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if strings.TrimSpace(m.ID) == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("alert without id")
	}

	msg := models.Message{
		ID:     m.ID,
		Text:   m.Text,
		Edited: m.Edited,
		Source: "kafka",
	}
	if m.SentAt != "" {
		sent, ok := util.ParseTime(m.SentAt)
		if !ok {
			h.metrics.RecordError("consumer_invalid")
			return fmt.Errorf("alert %s: invalid sent_at %q", m.ID, m.SentAt)
		}
		msg.SentAt = sent
	}

	_, err := h.intake.Handle(ctx, msg)
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaAlertsHandler)(nil)
