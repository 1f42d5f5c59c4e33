// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"log"

	"github.com/jeranaias/wave-tui/internal/model"
	"github.com/jeranaias/wave-tui/internal/remote"
)

// =============================================================================
// INBOUND FEEDS
// =============================================================================

// onMessageBatch handles the queued-message feed. The server delivers
// messages in batches; each element runs the full pipeline on its own, so
// one bad message cannot take its batchmates down with it.
func (c *Coordinator) onMessageBatch(payload json.RawMessage) {
	var batch []model.Message
	if err := json.Unmarshal(payload, &batch); err != nil {
		log.Printf("engine: dropping malformed message batch: %v", err)
		return
	}
	for _, m := range batch {
		c.handleInbound(m)
	}
}

// onEcho handles the server's echo of a message this client sent. The
// echo carries the assigned id and runs the same pipeline as any other
// inbound message, which is where an outbound message finally gets
// persisted and shown.
func (c *Coordinator) onEcho(payload json.RawMessage) {
	var m model.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Printf("engine: dropping malformed echo: %v", err)
		return
	}
	c.handleInbound(m)
}

// onGroupAdded handles the group feed: the server announces a group this
// account was just added to.
func (c *Coordinator) onGroupAdded(payload json.RawMessage) {
	var g model.Group
	if err := json.Unmarshal(payload, &g); err != nil {
		log.Printf("engine: dropping malformed group notice: %v", err)
		return
	}
	if g.ID <= 0 {
		log.Printf("engine: dropping group notice without id")
		return
	}

	ctx := context.Background()
	_, st, _, self, _, err := c.live()
	if err != nil {
		return
	}
	if err := st.UpsertGroup(ctx, g.ID, g.Name, g.CreatorID); err != nil {
		log.Printf("engine: record group %d: %v", g.ID, err)
		return
	}
	if err := st.AddMembership(ctx, g.ID, self.ID); err != nil {
		log.Printf("engine: record membership in group %d: %v", g.ID, err)
	}
	if err := c.refreshRecipients(ctx); err != nil {
		log.Printf("engine: recipient refresh: %v", err)
	}
}

// =============================================================================
// PER-MESSAGE PIPELINE
// =============================================================================

// handleInbound runs one delivered message through persist, resolve,
// project, confirm. Failures are logged per message, never escalated; a
// message that could not be persisted is not confirmed, so the server
// redelivers it.
func (c *Coordinator) handleInbound(m model.Message) {
	ctx := context.Background()
	conn, st, res, _, sel, err := c.live()
	if err != nil {
		return
	}

	// Persist first. A redelivered duplicate lands on the existing row
	// and changes nothing.
	if err := st.UpsertMessage(ctx, m); err != nil {
		log.Printf("engine: persist message %d: %v", m.ID, err)
		return
	}

	// Make sure the sender is someone we can name. A freshly learned
	// sender means a new entry in the recipient list.
	if _, fresh, err := res.UserByID(ctx, m.Origin); err != nil {
		log.Printf("engine: resolve sender %d: %v", m.Origin, err)
	} else if fresh {
		if err := c.refreshRecipients(ctx); err != nil {
			log.Printf("engine: recipient refresh: %v", err)
		}
	}
	if m.Kind == model.KindGroup {
		if _, fresh, err := res.GroupByID(ctx, m.Destination); err != nil {
			log.Printf("engine: resolve group %d: %v", m.Destination, err)
		} else if fresh {
			if err := c.refreshRecipients(ctx); err != nil {
				log.Printf("engine: recipient refresh: %v", err)
			}
		}
	}

	if sel.Matches(m) {
		c.notifier.MessageAppended(m)
	}

	// Confirm receipt so the server stops holding this occurrence.
	if err := conn.Send(ctx, remote.TopicReceipt, []int64{m.ID}); err != nil {
		log.Printf("engine: confirm message %d: %v", m.ID, err)
	}
}
