package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"DMChat/module/chat/message"
	usermodel "DMChat/module/user/model"

	"golang.org/x/sync/errgroup"
)

const summaryConcurrency = 8

// Summaries is the per-peer unseen count and last-contact time for one requester.
// Unseen omits peers with nothing unseen; LastContact omits peers never messaged.
type Summaries struct {
	Unseen      map[string]int64
	LastContact map[string]time.Time
}

// Aggregator derives unseen counts and recency from the message store.
type Aggregator struct {
	store message.Store
}

func NewAggregator(store message.Store) *Aggregator {
	return &Aggregator{store: store}
}

// PeerSummaries computes the unseen count (peer → requester) and the most recent
// message time in either direction for every peer.
func (a *Aggregator) PeerSummaries(ctx context.Context, requester string, peers []*usermodel.User) (*Summaries, error) {
	if err := requireIdentity(requester); err != nil {
		return nil, err
	}
	out := &Summaries{
		Unseen:      make(map[string]int64),
		LastContact: make(map[string]time.Time),
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for _, p := range peers {
		peerID := p.ID
		g.Go(func() error {
			n, err := a.store.CountUnseen(gctx, peerID, requester)
			if err != nil {
				return err
			}
			t, ok, err := a.store.LastContact(gctx, requester, peerID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if n > 0 {
				out.Unseen[peerID] = n
			}
			if ok {
				out.LastContact[peerID] = t
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SortByRecency orders peers most recent contact first. Peers never messaged go
// last; ties fall back to name then id.
func (s *Summaries) SortByRecency(peers []*usermodel.User) {
	sort.SliceStable(peers, func(i, j int) bool {
		ti, iok := s.LastContact[peers[i].ID]
		tj, jok := s.LastContact[peers[j].ID]
		if iok != jok {
			return iok
		}
		if iok && !ti.Equal(tj) {
			return ti.After(tj)
		}
		ni, nj := strings.ToLower(peers[i].FullName), strings.ToLower(peers[j].FullName)
		if ni != nj {
			return ni < nj
		}
		return peers[i].ID < peers[j].ID
	})
}
