// services/scheduler.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"bounty-settlement-system/utils"

	"github.com/go-co-op/gocron/v2"
)

// StartDisbursementScheduler runs two background jobs against the ledger:
// every minute undelivered disbursement records are pushed to the accounting
// service, and once a day the last 24h of the disbursement ledger is exported
// to object storage as a snapshot.
func (s *LedgerService) StartDisbursementScheduler(accountingURL, serviceToken string) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := s.dispatchPending(accountingURL, serviceToken); err != nil {
				log.Printf("[Scheduler] Disbursement dispatch error: %v", err)
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			if err := s.exportLedgerSnapshot(); err != nil {
				log.Printf("[Scheduler] Ledger export error: %v", err)
			}
		}),
	)
}

// dispatchPending delivers undelivered disbursement records to the accounting
// service, oldest first. Records stay undispatched on any failure and are
// retried on the next tick; the accounting side deduplicates by record id.
func (s *LedgerService) dispatchPending(accountingURL, serviceToken string) error {
	pending, err := s.PendingDisbursements(100)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, d := range pending {
		body, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to encode disbursement %s: %w", d.ID, err)
		}

		req, err := http.NewRequest("POST", accountingURL+"/api/v1/disbursements", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build accounting request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Service-Token", serviceToken)

		resp, err := utils.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("accounting service unreachable: %w", err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("accounting service returned status %d for disbursement %s", resp.StatusCode, d.ID)
		}

		if err := s.MarkDispatched(d.ID); err != nil {
			return fmt.Errorf("failed to mark disbursement %s dispatched: %w", d.ID, err)
		}
		log.Printf("📤 Disbursement %s delivered to accounting (%s %s → %s)", d.ID, d.Amount, d.Token, d.Recipient)
	}
	return nil
}

// exportLedgerSnapshot uploads the last 24h of disbursements as a dated JSON
// object for the accounting collaborator's archive.
func (s *LedgerService) exportLedgerSnapshot() error {
	since := time.Now().UTC().Add(-24 * time.Hour)
	records, err := s.DisbursementsSince(since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger snapshot: %w", err)
	}

	key := fmt.Sprintf("ledger-exports/disbursements-%s.json", time.Now().UTC().Format("2006-01-02"))
	url, err := utils.UploadLedgerSnapshot(key, body)
	if err != nil {
		return err
	}

	log.Printf("🗄️ Exported %d disbursement(s) to %s", len(records), url)
	return nil
}
