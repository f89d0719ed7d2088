package session

import (
	"encoding/json"
	"time"

	"github.com/genstats/client/internal/models"
)

// Snapshot is the persistable part of a session. The pending file is never
// persisted.
type Snapshot struct {
	Handle          string    `msgpack:"handle"`
	Preview         []byte    `msgpack:"preview,omitempty"`
	Summary         []byte    `msgpack:"summary,omitempty"`
	SummaryHandle   string    `msgpack:"summary_handle,omitempty"`
	InsightQuery    string    `msgpack:"insight_query,omitempty"`
	InsightResponse string    `msgpack:"insight_response,omitempty"`
	SavedAt         time.Time `msgpack:"saved_at"`
}

// Snapshot captures the current state for persistence.
func (c *Client) Snapshot() Snapshot {
	st := c.State()
	return Snapshot{
		Handle:          st.Handle.String(),
		Preview:         st.Preview,
		Summary:         st.Summary,
		SummaryHandle:   st.SummaryHandle.String(),
		InsightQuery:    st.InsightQuery,
		InsightResponse: st.InsightResponse,
		SavedAt:         time.Now(),
	}
}

// Restore replaces the stored handle, summary and insight with those of s.
// A pending selection is kept.
func (c *Client) Restore(s Snapshot) {
	c.mu.Lock()
	c.state.Handle = models.DatasetHandle(s.Handle)
	c.state.Preview = json.RawMessage(append([]byte(nil), s.Preview...))
	if len(s.Preview) == 0 {
		c.state.Preview = nil
	}
	c.state.Summary = nil
	if len(s.Summary) > 0 {
		c.state.Summary = append(models.Summary(nil), s.Summary...)
	}
	c.state.SummaryHandle = models.DatasetHandle(s.SummaryHandle)
	c.state.InsightQuery = s.InsightQuery
	c.state.InsightResponse = s.InsightResponse
	c.commit()
}
