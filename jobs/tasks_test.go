package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/registria/registria/internal/jobs"
	"github.com/registria/registria/internal/shared"
)

func TestReceiptDispatchTaskCarriesReceipt(t *testing.T) {
	receipt := shared.Receipt{
		ID:        uuid.New(),
		Ledger:    shared.LedgerRoleRequests,
		RequestID: 7,
		Actor:     "0x1111111111111111111111111111111111111111",
		Action:    shared.ReceiptApprove,
		Status:    "APPROVED",
	}

	task, err := NewReceiptDispatchTask(receipt)
	require.NoError(t, err)
	require.Equal(t, TaskTypeReceiptDispatch, task.Type())

	var payload ReceiptDispatchPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, receipt.ID.String(), payload.ReceiptID)
	require.Equal(t, shared.LedgerRoleRequests, payload.Ledger)
	require.Equal(t, int64(7), payload.RequestID)
	require.Equal(t, "APPROVE", payload.Action)
}

func TestReceiptDispatchHandlerCountsReceipts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	handler := NewReceiptDispatchHandler(slog.Default(), metrics)

	receipt := shared.Receipt{
		ID:        uuid.New(),
		Ledger:    shared.LedgerRegistrations,
		RequestID: 0,
		Actor:     "0x2222222222222222222222222222222222222222",
		Action:    shared.ReceiptSubmit,
		Status:    "PENDING",
	}
	task, err := NewReceiptDispatchTask(receipt)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 1.0, counterValue(t, families, "registria_receipts_dispatched_total",
		map[string]string{"ledger": shared.LedgerRegistrations, "action": "SUBMIT"}))
	require.Equal(t, 1.0, counterValue(t, families, "registria_jobs_total",
		map[string]string{"job": "receipt_dispatch", "status": "success"}))
}

func TestReceiptDispatchHandlerSkipsMalformedPayload(t *testing.T) {
	reg := prometheus.NewRegistry()
	handler := NewReceiptDispatchHandler(slog.Default(), jobmetrics.NewMetrics(reg))

	err := handler(context.Background(), asynq.NewTask(TaskTypeReceiptDispatch, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, metric := range family.GetMetric() {
			got := make(map[string]string, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				got[label.GetName()] = label.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}
