// Package chattest records chat.Poster calls in memory.
package chattest

import (
	"context"
	"fmt"
	"sync"

	"airdrop-bot/internal/chat"
)

type Posted struct {
	Ref     chat.MessageRef
	Message chat.Message
}

type Poster struct {
	mu      sync.Mutex
	next    int
	Posts   []Posted
	Edits   []Posted
	Deletes []chat.MessageRef
	PostErr error
	EditErr error
}

func (p *Poster) Post(ctx context.Context, channelID string, msg chat.Message) (chat.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PostErr != nil {
		return chat.MessageRef{}, p.PostErr
	}
	p.next++
	ref := chat.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", p.next)}
	p.Posts = append(p.Posts, Posted{Ref: ref, Message: msg})
	return ref, nil
}

func (p *Poster) Edit(ctx context.Context, ref chat.MessageRef, msg chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EditErr != nil {
		return p.EditErr
	}
	p.Edits = append(p.Edits, Posted{Ref: ref, Message: msg})
	return nil
}

func (p *Poster) Delete(ctx context.Context, ref chat.MessageRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Deletes = append(p.Deletes, ref)
	return nil
}

func (p *Poster) PostCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Posts)
}

func (p *Poster) EditsSnapshot() []Posted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Posted(nil), p.Edits...)
}
