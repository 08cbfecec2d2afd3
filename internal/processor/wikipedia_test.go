package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *WikipediaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewWikipediaClient(
		WithBaseURL(server.URL),
		WithLogger(common.NewSilentLogger()),
		WithRateLimit(1000),
	)
}

func TestWikipediaClient_ProcessReturnsExtract(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{
					{"extract": "A bird of prey."},
				},
			},
		})
	})

	body, err := client.Process(context.Background(), &models.Job{Name: "Osprey"})
	require.NoError(t, err)
	require.Equal(t, "A bird of prey.", body["research"])
}

func TestWikipediaClient_ProcessFailsOnMissingPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{
					{"missing": true},
				},
			},
		})
	})

	_, err := client.Process(context.Background(), &models.Job{Name: "Nonexistentbirdxyz"})
	require.Error(t, err)
	var researchErr *ResearchError
	require.ErrorAs(t, err, &researchErr)
}

func TestWikipediaClient_ProcessFailsOnEmptyExtract(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{
					{"extract": ""},
				},
			},
		})
	})

	_, err := client.Process(context.Background(), &models.Job{Name: "Empty"})
	require.Error(t, err)
}

func TestWikipediaClient_ProcessFailsOnNonOKStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Process(context.Background(), &models.Job{Name: "Anything"})
	require.Error(t, err)
}

func TestWikipediaClient_ProcessFailsOnNoPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": []map[string]any{},
			},
		})
	})

	_, err := client.Process(context.Background(), &models.Job{Name: "Anything"})
	require.Error(t, err)
}
