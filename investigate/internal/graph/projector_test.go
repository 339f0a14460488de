package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

func testInvestigation() *models.Investigation {
	a := models.Entity{Type: models.EntityWalletAddress, Value: "0xA"}
	b := models.Entity{Type: models.EntityIPAddress, Value: "203.0.113.1"}
	c, _ := models.NewConnection(models.ConnectionEvidenceLink, a, b, 0.8, time.Now(), "shared evidence")
	c.EvidenceRefs = []string{"ev-1"}
	return &models.Investigation{
		ID:             "inv-1",
		HumanCode:      "INV-20240101-ABCDEF",
		Status:         models.StatusActive,
		Entities:       []models.Entity{a, b},
		Connections:    []models.Connection{c},
		RiskAssessment: models.RiskAssessment{OverallRisk: 0.44},
	}
}

func TestProjector_Project(t *testing.T) {
	client := NewMemoryClient()
	p := NewProjector(client, logging.Discard())

	require.NoError(t, p.Project(context.Background(), testInvestigation()))

	writes := client.Writes()
	require.Len(t, writes, 3)
	assert.Contains(t, writes[0].Cypher, "MERGE (i:Investigation")
	assert.Equal(t, "INV-20240101-ABCDEF", writes[0].Params["human_code"])
	entities := writes[0].Params["entities"].([]map[string]any)
	require.Len(t, entities, 2)
	assert.Equal(t, "wallet_address:0xa", entities[0]["key"])
	assert.Equal(t, "0xA", entities[0]["value"])

	assert.True(t, strings.Contains(writes[1].Cypher, "DELETE r"))

	conns := writes[2].Params["connections"].([]map[string]any)
	require.Len(t, conns, 1)
	assert.Equal(t, "ip_address:203.0.113.1", conns[0]["to"])
	assert.Equal(t, "evidence_link", conns[0]["type"])
	assert.Equal(t, 0.8, conns[0]["strength"])
}

func TestProjector_ProjectWithoutConnections(t *testing.T) {
	client := NewMemoryClient()
	p := NewProjector(client, logging.Discard())
	inv := testInvestigation()
	inv.Connections = nil

	require.NoError(t, p.Project(context.Background(), inv))
	assert.Len(t, client.Writes(), 2)
}

func TestProjector_ProjectError(t *testing.T) {
	client := NewMemoryClient()
	client.FailWith(errors.New("bolt: connection reset"))
	p := NewProjector(client, logging.Discard())

	err := p.Project(context.Background(), testInvestigation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inv-1")
	assert.Error(t, p.Ping(context.Background()))
}

func TestProjector_Neighbors(t *testing.T) {
	client := NewMemoryClient()
	client.QueueRead(Result{Records: []Record{
		{"key": "ip_address:203.0.113.1", "type": "geographic_proximity", "strength": 0.5, "investigation_id": "inv-2"},
		{"key": "wallet_address:0xB", "type": "evidence_link", "strength": 0.8, "investigation_id": "inv-1"},
	}})
	p := NewProjector(client, nil)

	got, err := p.Neighbors(context.Background(), models.EntityKey{Type: models.EntityWalletAddress, Value: "0xA"}, 0.3, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "wallet_address:0xB", got[0].Key)
	assert.Equal(t, 0.8, got[0].Strength)

	reads := client.Reads()
	require.Len(t, reads, 1)
	assert.Equal(t, "wallet_address:0xa", reads[0].Params["key"])
	assert.Equal(t, 0.3, reads[0].Params["min_strength"])
}
