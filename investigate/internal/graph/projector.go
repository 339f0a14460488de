package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

const projectInvestigation = `
MERGE (i:Investigation {id: $id})
SET i.human_code = $human_code, i.status = $status, i.overall_risk = $overall_risk
WITH i
UNWIND $entities AS ent
MERGE (e:Entity {key: ent.key})
SET e.type = ent.type, e.value = ent.value
MERGE (i)-[:INVOLVES]->(e)`

const clearConnections = `
MATCH (:Entity)-[r:CONNECTED {investigation_id: $id}]->(:Entity)
DELETE r`

const projectConnections = `
UNWIND $connections AS c
MATCH (a:Entity {key: c.from}), (b:Entity {key: c.to})
MERGE (a)-[r:CONNECTED {investigation_id: $id, type: c.type}]->(b)
SET r.strength = c.strength, r.evidence_refs = c.evidence_refs`

const neighborsQuery = `
MATCH (e:Entity {key: $key})-[r:CONNECTED]-(n:Entity)
WHERE r.strength >= $min_strength
RETURN n.key AS key, r.type AS type, r.strength AS strength, r.investigation_id AS investigation_id
ORDER BY strength DESC
LIMIT $limit`

// Neighbor is an entity connected to another in some investigation.
type Neighbor struct {
	Key             string  `json:"key"`
	Type            string  `json:"type"`
	Strength        float64 `json:"strength"`
	InvestigationID string  `json:"investigation_id"`
}

// Projector mirrors investigations into the graph.
type Projector struct {
	client Client
	logger *logging.Logger
}

func NewProjector(client Client, logger *logging.Logger) *Projector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Projector{client: client, logger: logger.Component("graph")}
}

// Project upserts the investigation node, its entities and its current
// connections. Connections from earlier projections are replaced.
func (p *Projector) Project(ctx context.Context, inv *models.Investigation) error {
	entities := make([]map[string]any, 0, len(inv.Entities))
	for _, e := range inv.Entities {
		entities = append(entities, map[string]any{
			"key":   e.Key().String(),
			"type":  string(e.Type),
			"value": e.Value,
		})
	}
	if _, err := p.client.ExecuteWrite(ctx, projectInvestigation, map[string]any{
		"id":           inv.ID,
		"human_code":   inv.HumanCode,
		"status":       string(inv.Status),
		"overall_risk": inv.RiskAssessment.OverallRisk,
		"entities":     entities,
	}); err != nil {
		return fmt.Errorf("project investigation %s: %w", inv.ID, err)
	}

	if _, err := p.client.ExecuteWrite(ctx, clearConnections, map[string]any{"id": inv.ID}); err != nil {
		return fmt.Errorf("clear connections of %s: %w", inv.ID, err)
	}
	if len(inv.Connections) == 0 {
		return nil
	}

	conns := make([]map[string]any, 0, len(inv.Connections))
	for _, c := range inv.Connections {
		refs := c.EvidenceRefs
		if refs == nil {
			refs = []string{}
		}
		conns = append(conns, map[string]any{
			"from":          c.Entity1.Key().String(),
			"to":            c.Entity2.Key().String(),
			"type":          string(c.Type),
			"strength":      c.Strength,
			"evidence_refs": refs,
		})
	}
	if _, err := p.client.ExecuteWrite(ctx, projectConnections, map[string]any{
		"id":          inv.ID,
		"connections": conns,
	}); err != nil {
		return fmt.Errorf("project connections of %s: %w", inv.ID, err)
	}

	p.logger.DebugContext(ctx, "investigation projected",
		logging.InvestigationID(inv.ID), logging.Count(len(conns)))
	return nil
}

// Neighbors returns entities connected to key with at least minStrength,
// strongest first.
func (p *Projector) Neighbors(ctx context.Context, key models.EntityKey, minStrength float64, limit int) ([]Neighbor, error) {
	res, err := p.client.ExecuteRead(ctx, neighborsQuery, map[string]any{
		"key":          models.EntityKey{Type: key.Type, Value: models.NormalizeValue(key.Value)}.String(),
		"min_strength": minStrength,
		"limit":        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query neighbors of %s: %w", key, err)
	}

	out := make([]Neighbor, 0, len(res.Records))
	for _, rec := range res.Records {
		n := Neighbor{}
		n.Key, _ = rec["key"].(string)
		n.Type, _ = rec["type"].(string)
		n.InvestigationID, _ = rec["investigation_id"].(string)
		switch v := rec["strength"].(type) {
		case float64:
			n.Strength = v
		case int64:
			n.Strength = float64(v)
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	return out, nil
}

func (p *Projector) Ping(ctx context.Context) error {
	return p.client.VerifyConnectivity(ctx)
}

func (p *Projector) Close(ctx context.Context) error {
	return p.client.Close(ctx)
}
