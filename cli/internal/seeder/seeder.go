// Package seeder generates synthetic reports, evidence, escalations and risk
// snapshots so the timeline and correlation paths can be exercised against a
// live service.
package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/telhawk-systems/telhawk-investigate/cli/internal/client"
)

var reasons = []string{
	"phishing site impersonating exchange",
	"fake giveaway",
	"rug pull",
	"ransomware payment address",
	"romance scam",
	"impersonation of support staff",
}

var riskLevels = []string{"low", "medium", "high", "critical"}

// Generate builds one batch of related records. Entities share a small pool
// of reporter IPs and evidence files so that correlation has something to
// find.
func Generate(opts Options) (*client.RecordBatch, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	f := gofakeit.New(opts.Seed)
	end := opts.Now
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := end.Add(-opts.TimeSpread)

	wallets := make([]string, opts.Entities)
	for i := range wallets {
		wallets[i] = fmt.Sprintf("0x%016x%016x%08x", f.Uint64(), f.Uint64(), f.Uint32())
	}
	ips := make([]string, max(1, opts.Entities/3))
	for i := range ips {
		ips[i] = f.IPv4Address()
	}
	hashes := make([]string, max(1, opts.Entities/4))
	for i := range hashes {
		hashes[i] = fmt.Sprintf("%016x%016x%016x%016x", f.Uint64(), f.Uint64(), f.Uint64(), f.Uint64())
	}

	batch := &client.RecordBatch{}
	for i, wallet := range wallets {
		caseID := fmt.Sprintf("%s-%04d", opts.CasePrefix, i/max(1, opts.EntitiesPerCase)+1)

		for r := 0; r < opts.ReportsPerEntity; r++ {
			batch.Reports = append(batch.Reports, client.Report{
				ID:         f.UUID(),
				EntityID:   wallet,
				CaseID:     caseID,
				Reason:     f.RandomString(reasons),
				Severity:   f.Number(1, 5),
				RiskLevel:  f.RandomString(riskLevels),
				ReporterIP: ips[f.Number(0, len(ips)-1)],
				CreatedAt:  f.DateRange(start, end).UTC(),
				Status:     "open",
			})
		}

		for e := 0; e < opts.EvidencePerEntity; e++ {
			linked := []string{wallet}
			if len(wallets) > 1 {
				linked = append(linked, wallets[(i+1)%len(wallets)])
			}
			batch.Evidence = append(batch.Evidence, client.Evidence{
				ID:                 f.UUID(),
				CaseID:             caseID,
				Entity:             wallet,
				IPAddress:          ips[f.Number(0, len(ips)-1)],
				LinkedEntities:     linked,
				FileHash:           hashes[f.Number(0, len(hashes)-1)],
				FileSize:           int64(f.Number(1024, 5<<20)),
				UploadedAt:         f.DateRange(start, end).UTC(),
				RiskLevel:          f.RandomString(riskLevels),
				VerificationStatus: f.RandomString([]string{"pending", "verified"}),
				IntegrityStatus:    "intact",
			})
		}

		if f.Float64Range(0, 1) < opts.EscalationRate {
			score := f.Float64Range(0.6, 1)
			batch.Escalations = append(batch.Escalations, client.Escalation{
				ID:        f.UUID(),
				Entity:    wallet,
				CaseID:    caseID,
				RiskScore: &score,
				Trigger:   f.RandomString([]string{"risk_threshold", "manual", "report_volume"}),
				CreatedAt: f.DateRange(start, end).UTC(),
			})
		}

		score := f.Float64Range(0, 1)
		batch.RiskSnapshots = append(batch.RiskSnapshots, client.RiskSnapshot{
			ID:          f.UUID(),
			Wallet:      wallet,
			Level:       f.RandomString(riskLevels),
			Score:       &score,
			ReportCount: opts.ReportsPerEntity,
			UpdatedAt:   f.DateRange(start, end).UTC(),
		})
	}

	return batch, nil
}

// Chunk splits a batch so no record list in a chunk exceeds size.
func Chunk(batch *client.RecordBatch, size int) []client.RecordBatch {
	if size <= 0 {
		return []client.RecordBatch{*batch}
	}
	var out []client.RecordBatch
	for i := 0; ; i += size {
		c := client.RecordBatch{
			Reports:       window(batch.Reports, i, size),
			Evidence:      window(batch.Evidence, i, size),
			Escalations:   window(batch.Escalations, i, size),
			RiskSnapshots: window(batch.RiskSnapshots, i, size),
		}
		if len(c.Reports)+len(c.Evidence)+len(c.Escalations)+len(c.RiskSnapshots) == 0 {
			break
		}
		out = append(out, c)
	}
	return out
}

func window[T any](s []T, from, size int) []T {
	if from >= len(s) {
		return nil
	}
	return s[from:min(from+size, len(s))]
}

// Ingester accepts record batches.
type Ingester interface {
	IngestRecords(ctx context.Context, batch *client.RecordBatch) (*client.IngestResult, error)
}

// Run sends batch in chunks of batchSize and returns the summed counts.
// The first failing chunk stops the run; counts reflect what was accepted.
func Run(ctx context.Context, in Ingester, batch *client.RecordBatch, batchSize int) (*client.IngestResult, error) {
	total := &client.IngestResult{}
	for i, chunk := range Chunk(batch, batchSize) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := in.IngestRecords(ctx, &chunk)
		if err != nil {
			return total, fmt.Errorf("chunk %d: %w", i+1, err)
		}
		total.Reports += res.Reports
		total.Evidence += res.Evidence
		total.Escalations += res.Escalations
		total.RiskSnapshots += res.RiskSnapshots
	}
	return total, nil
}
