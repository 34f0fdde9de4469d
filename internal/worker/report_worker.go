package worker

// report_worker.go
// Processes batch report jobs from QueueReport: renders the movement report
// PDF and mails it through the circuit-breaker-guarded SMTP relay.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/infra"
	"github.com/amphorabeer/brewhouse/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ReportWorker struct {
	batches     repository.BatchRepository
	transfers   repository.TransferRepository
	tanks       repository.TankRepository
	mailer      *infra.Mailer
	cb          *infra.CircuitBreaker
	storagePath string
}

func NewReportWorker(
	batches repository.BatchRepository,
	transfers repository.TransferRepository,
	tanks repository.TankRepository,
	mailer *infra.Mailer,
	cb *infra.CircuitBreaker,
	storagePath string,
) *ReportWorker {
	return &ReportWorker{
		batches:     batches,
		transfers:   transfers,
		tanks:       tanks,
		mailer:      mailer,
		cb:          cb,
		storagePath: storagePath,
	}
}

// Process renders and mails one batch report. The PDF always lands on disk;
// only the email leg runs through the circuit breaker.
func (w *ReportWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReportJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("report_worker: invalid payload")
		return nil
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		log.Error().Str("tenant_id", payload.TenantID).Msg("report_worker: invalid tenant_id")
		return nil
	}
	batchID, err := uuid.Parse(payload.BatchID)
	if err != nil {
		log.Error().Str("batch_id", payload.BatchID).Msg("report_worker: invalid batch_id")
		return nil
	}

	batch, err := w.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return fmt.Errorf("report_worker: load batch %s: %w", payload.BatchID, err)
	}

	transfers, _, err := w.transfers.List(ctx, tenantID, dto.TransferFilter{
		BatchID: payload.BatchID,
		Page:    1,
		Limit:   200,
	})
	if err != nil {
		return fmt.Errorf("report_worker: load transfers for batch %s: %w", payload.BatchID, err)
	}

	tankNames := make(map[uuid.UUID]string)
	tanks, _, err := w.tanks.List(ctx, tenantID, dto.TankFilter{Status: "all", Page: 1, Limit: 200})
	if err == nil {
		for i := range tanks {
			tankNames[tanks[i].ID] = tanks[i].Name
		}
	}

	pdfPath, err := infra.GenerateBatchReportPDF(batch, transfers, tankNames, w.storagePath)
	if err != nil {
		return fmt.Errorf("report_worker: render PDF for batch %s: %w", batch.Code, err)
	}
	log.Info().Str("pdf", pdfPath).Str("batch", batch.Code).Msg("report_worker: PDF generated")

	if payload.ToEmail == "" {
		return nil
	}

	sendErr := w.cb.Execute(func() error {
		return w.mailer.SendReport(
			payload.ToEmail,
			fmt.Sprintf("Movement report — batch %s", batch.Code),
			fmt.Sprintf("Attached is the movement report for batch %s (%s).", batch.Code, batch.RecipeName),
			pdfPath,
		)
	})
	if sendErr != nil {
		return fmt.Errorf("report_worker: send report for batch %s: %w", batch.Code, sendErr)
	}
	log.Info().Str("to", payload.ToEmail).Str("batch", batch.Code).Msg("report_worker: report sent")
	return nil
}
