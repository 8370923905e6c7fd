package reddit

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// Remember roughly three listing pages worth of ids before evicting.
const maxSeenIDs = 301

// stream turns a "newest first" listing endpoint into a resumable sequence
// of unseen items. Reddit returns the same head items on every poll, so the
// stream remembers recently yielded ids, bounded for memory.
type stream struct {
	client *Client
	path   string
	seen   map[string]bool
	order  []string
}

func newStream(client *Client, path string) *stream {
	return &stream{
		client: client,
		path:   path,
		seen:   make(map[string]bool),
	}
}

// next fetches the listing and returns the unseen items, oldest first. When
// nothing new arrived it sleeps one poll interval and returns an empty
// batch, the "caught up" sentinel the control loop switches sources on.
func (s *stream) next(ctx context.Context) ([]thing, error) {
	var result listing
	err := s.client.get(ctx, s.path, url.Values{"limit": {"100"}}, &result)
	if err != nil {
		return nil, err
	}

	var fresh []thing
	children := result.Data.Children
	for i := len(children) - 1; i >= 0; i-- {
		item := children[i]
		id := itemID(item)
		if id == "" || s.seen[id] {
			continue
		}
		s.remember(id)
		fresh = append(fresh, item)
	}

	if len(fresh) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.client.pollInterval):
		}
	}
	return fresh, nil
}

func (s *stream) remember(id string) {
	s.seen[id] = true
	s.order = append(s.order, id)
	if len(s.order) > maxSeenIDs {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
}

func itemID(item thing) string {
	var data struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(item.Data, &data); err != nil {
		return ""
	}
	return data.Name
}
