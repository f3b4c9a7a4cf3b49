// workers/identity_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"bounty-settlement-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkedAccountFromProfile matches the JSON the profile service returns for a
// wallet with a connected source-control account.
type LinkedAccountFromProfile struct {
	Address         string    `json:"address"`
	GithubUsername  *string   `json:"github_username,omitempty"`
	GithubID        *string   `json:"github_id,omitempty"`
	GithubConnected bool      `json:"github_connected"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GetLinkedAccountsResponse is the top-level structure of the profile service response.
type GetLinkedAccountsResponse struct {
	Accounts []LinkedAccountFromProfile `json:"accounts"`
}

// IdentitySyncWorker mirrors linked GitHub handles from the profile service
// into the local identities table. The bounty engine never writes these
// fields itself; contributors connect their accounts on the profile side.
type IdentitySyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/linked-accounts"
	serviceToken string
	httpClient   *http.Client
}

func NewIdentitySyncWorker(db *gorm.DB, profileServiceBaseURL, endpointPath, serviceToken string) *IdentitySyncWorker {
	return &IdentitySyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      profileServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *IdentitySyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Identity Sync Worker (profile service → identities)…")
	go w.run(ctx)
}

func (w *IdentitySyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial identity sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Identity sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Identity Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent LastSyncedAt from the local identities table.
func (w *IdentitySyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	w.db.Model(&models.Identity{}).
		Select("COALESCE(MAX(last_synced_at), '0001-01-01')").
		Scan(&lastTime)
	return lastTime
}

func (w *IdentitySyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	accounts, err := w.fetchChangedAccounts(ctx, since)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]models.Identity, 0, len(accounts))
	for _, a := range accounts {
		addr := models.NormalizeAddress(a.Address)
		if addr == "" {
			continue
		}
		rows = append(rows, models.Identity{
			Address:         addr,
			GithubUsername:  a.GithubUsername,
			GithubID:        a.GithubID,
			GithubConnected: a.GithubConnected,
			LastSyncedAt:    &now,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	if err := w.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"github_username", "github_id", "github_connected", "last_synced_at", "updated_at",
		}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to upsert identities: %w", err)
	}

	log.Printf("📥 Synced %d linked account(s) from profile service", len(rows))
	return nil
}

func (w *IdentitySyncWorker) fetchChangedAccounts(ctx context.Context, since time.Time) ([]LinkedAccountFromProfile, error) {
	u, err := url.Parse(w.baseURL + w.endpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile service URL: %w", err)
	}

	q := u.Query()
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call profile service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response GetLinkedAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return response.Accounts, nil
}
