package mqttv5client

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"
)

// PublishResult is the outcome of a successful publish. Puback is nil for QoS 0.
type PublishResult struct {
	Puback *PubackPacket
}

// Statistics describes the operations the client has not finished.
// Sizes are encoded packet bytes.
type Statistics struct {
	// IncompleteOperationCount counts every operation not yet completed.
	IncompleteOperationCount uint64
	IncompleteOperationSize  uint64

	// UnackedOperationCount counts operations sent and awaiting acknowledgment.
	UnackedOperationCount uint64
	UnackedOperationSize  uint64
}

// Subscribe queues a SUBSCRIBE. The future resolves with the SUBACK whatever
// its reason codes; inspect them per filter. Invalid filters are rejected here
// and never queued. ctx bounds only this operation.
func (c *Client) Subscribe(ctx context.Context, pkt *SubscribePacket) (*Future[*SubackPacket], error) {
	if pkt == nil || len(pkt.Subscriptions) == 0 {
		return nil, fmt.Errorf("%w: subscribe without subscriptions", ErrInvalidPacket)
	}
	for _, sub := range pkt.Subscriptions {
		if !ValidateTopic(sub.TopicFilter, true).IsValid {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, sub.TopicFilter)
		}
	}

	p := *pkt
	p.PacketID = 0
	p.Subscriptions = slices.Clone(pkt.Subscriptions)

	f := newFuture[*SubackPacket]()
	op := &operation{
		kind:   opSubscribe,
		packet: &p,
		complete: func(ack Packet, err error) {
			if err != nil {
				f.reject(err)
				return
			}
			f.resolve(ack.(*SubackPacket))
		},
	}
	if err := c.submit(ctx, op); err != nil {
		return nil, err
	}
	return f, nil
}

// Unsubscribe queues an UNSUBSCRIBE. The future resolves with the UNSUBACK.
func (c *Client) Unsubscribe(ctx context.Context, pkt *UnsubscribePacket) (*Future[*UnsubackPacket], error) {
	if pkt == nil || len(pkt.TopicFilters) == 0 {
		return nil, fmt.Errorf("%w: unsubscribe without topic filters", ErrInvalidPacket)
	}
	for _, filter := range pkt.TopicFilters {
		if !ValidateTopic(filter, true).IsValid {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, filter)
		}
	}

	p := *pkt
	p.PacketID = 0
	p.TopicFilters = slices.Clone(pkt.TopicFilters)

	f := newFuture[*UnsubackPacket]()
	op := &operation{
		kind:   opUnsubscribe,
		packet: &p,
		complete: func(ack Packet, err error) {
			if err != nil {
				f.reject(err)
				return
			}
			f.resolve(ack.(*UnsubackPacket))
		},
	}
	if err := c.submit(ctx, op); err != nil {
		return nil, err
	}
	return f, nil
}

// Publish queues a PUBLISH. QoS 0 resolves once written to the transport;
// QoS 1 resolves with a successful PUBACK and rejects with *AckError on a
// failure reason code. QoS 2 is not supported for outbound messages.
func (c *Client) Publish(ctx context.Context, pkt *PublishPacket) (*Future[*PublishResult], error) {
	if pkt == nil {
		return nil, fmt.Errorf("%w: nil publish", ErrInvalidPacket)
	}
	if pkt.QoS == ExactlyOnce {
		return nil, ErrQoSNotSupported
	}
	if !pkt.QoS.Valid() {
		return nil, fmt.Errorf("%w: QoS %d", ErrInvalidPacket, pkt.QoS)
	}
	if !ValidateTopic(pkt.Topic, false).IsValid {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pkt.Topic)
	}
	if pkt.TopicAlias != nil {
		return nil, fmt.Errorf("%w: outbound topic aliases are not supported", ErrInvalidPacket)
	}

	p := *pkt
	p.PacketID = 0
	p.Duplicate = false

	f := newFuture[*PublishResult]()
	op := &operation{
		kind:   opPublish,
		packet: &p,
		complete: func(ack Packet, err error) {
			if err != nil {
				f.reject(err)
				return
			}
			res := &PublishResult{}
			if puback, ok := ack.(*PubackPacket); ok {
				res.Puback = puback
			}
			f.resolve(res)
		},
	}
	if err := c.submit(ctx, op); err != nil {
		return nil, err
	}
	return f, nil
}

// submit validates op and appends it to the queue.
func (c *Client) submit(ctx context.Context, op *operation) error {
	if err := op.measure(); err != nil {
		return err
	}
	op.enqueuedAt = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return ErrClientClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ctx.Done() != nil {
			op.stopCancel = context.AfterFunc(ctx, func() {
				c.cancelOperation(op, context.Cause(ctx))
			})
		}
	}

	c.queue = append(c.queue, op)
	c.dispatchLocked()
	return nil
}

// dispatchLocked sends queued operations in order while connected. It stops at
// the first operation that cannot go yet, so nothing is reordered.
func (c *Client) dispatchLocked() {
	for c.state == StateConnected && len(c.queue) > 0 {
		op := c.queue[0]

		if err := c.checkSettingsLocked(op); err != nil {
			c.popLocked()
			c.completeLocked(op, nil, err)
			continue
		}

		if op.needsFlow() {
			if !c.flow.tryAcquire() {
				break
			}
			op.holdsFlow = true
		}

		if op.needsID() {
			id, err := c.ids.allocate()
			if err != nil {
				c.releaseFlowLocked(op)
				break
			}
			op.setPacketID(id)
		}

		data, err := Encode(op.packet)
		if err != nil {
			c.popLocked()
			c.releaseLocked(op)
			c.completeLocked(op, nil, err)
			continue
		}

		c.popLocked()
		epoch := c.epoch

		var done func(error)
		if op.needsID() {
			op.state = opInflight
			c.inflight[op.id] = op
			if c.cfg.AckTimeout > 0 {
				op.timer = time.AfterFunc(c.cfg.AckTimeout, func() {
					c.onAckTimeout(epoch, op)
				})
			}
		} else {
			op.state = opWriting
			c.writing[op] = struct{}{}
			done = func(err error) {
				c.onPublishWritten(epoch, op, err)
			}
		}

		if err := c.writeLocked(op.packet.Type(), data, done); err != nil {
			// The connection failed underneath; its close callback fails op.
			break
		}
	}
	c.updateQueueMetricsLocked()
}

// checkSettingsLocked rejects operations the server said it cannot accept.
func (c *Client) checkSettingsLocked(op *operation) error {
	s := c.settings

	switch p := op.packet.(type) {
	case *PublishPacket:
		if p.QoS > s.MaximumQoS {
			return fmt.Errorf("%w: QoS %d above maximum %d", ErrNegotiatedSettingsViolation, p.QoS, s.MaximumQoS)
		}
		if p.Retain && !s.RetainAvailable {
			return fmt.Errorf("%w: retain not available", ErrNegotiatedSettingsViolation)
		}
	case *SubscribePacket:
		if p.SubscriptionIdentifier != nil && !s.SubscriptionIdentifiersAvailable {
			return fmt.Errorf("%w: subscription identifiers not available", ErrNegotiatedSettingsViolation)
		}
		for _, sub := range p.Subscriptions {
			v := ValidateTopic(sub.TopicFilter, true)
			if v.HasWildcard && !s.WildcardSubscriptionsAvailable {
				return fmt.Errorf("%w: wildcard subscriptions not available: %q", ErrNegotiatedSettingsViolation, sub.TopicFilter)
			}
			if v.IsShared && !s.SharedSubscriptionsAvailable {
				return fmt.Errorf("%w: shared subscriptions not available: %q", ErrNegotiatedSettingsViolation, sub.TopicFilter)
			}
		}
	}

	if uint64(op.size) > uint64(s.MaximumPacketSizeToServer) {
		return fmt.Errorf("%w: %d byte %s exceeds server maximum %d", ErrNegotiatedSettingsViolation,
			op.size, op.packet.Type(), s.MaximumPacketSizeToServer)
	}
	return nil
}

func (c *Client) popLocked() {
	c.queue[0] = nil
	c.queue = c.queue[1:]
}

// handleAckLocked completes the in-flight operation matching ack.
func (c *Client) handleAckLocked(kind operationKind, ack identified) {
	id := ack.packetID()
	op, ok := c.inflight[id]
	if !ok || op.kind != kind {
		c.logger.Warn("dropping acknowledgment for unknown packet ID", LogFields{
			LogFieldPacketType: ack.Type().String(),
			LogFieldPacketID:   id,
		})
		return
	}

	c.releaseLocked(op)

	var err error
	switch a := ack.(type) {
	case *PubackPacket:
		if a.ReasonCode.IsError() {
			err = &AckError{Packet: a, ReasonCode: a.ReasonCode}
		}
	case *SubackPacket:
		c.recordSubackLocked(op.packet.(*SubscribePacket), a)
	case *UnsubackPacket:
		c.recordUnsubackLocked(op.packet.(*UnsubscribePacket), a)
	}

	c.completeLocked(op, ack, err)
	c.dispatchLocked()
}

func (c *Client) recordSubackLocked(req *SubscribePacket, ack *SubackPacket) {
	for i, code := range ack.ReasonCodes {
		if i >= len(req.Subscriptions) || code.IsError() {
			continue
		}
		c.subscriptions[req.Subscriptions[i].TopicFilter] = QoS(code)
	}
}

func (c *Client) recordUnsubackLocked(req *UnsubscribePacket, ack *UnsubackPacket) {
	for i, code := range ack.ReasonCodes {
		if i >= len(req.TopicFilters) || code.IsError() {
			continue
		}
		delete(c.subscriptions, req.TopicFilters[i])
	}
}

// releaseLocked frees the packet ID and flow slot held by an in-flight op.
func (c *Client) releaseLocked(op *operation) {
	if op.state == opInflight {
		delete(c.inflight, op.id)
	}
	if op.id != 0 {
		c.ids.release(op.id)
	}
	c.releaseFlowLocked(op)
}

func (c *Client) releaseFlowLocked(op *operation) {
	if op.holdsFlow {
		c.flow.release()
		op.holdsFlow = false
	}
}

// completeLocked settles op once and removes its cancellation hook.
func (c *Client) completeLocked(op *operation, ack Packet, err error) {
	if op.done {
		return
	}
	op.done = true

	if op.stopCancel != nil {
		op.stopCancel()
		op.stopCancel = nil
	}
	if op.timer != nil {
		op.timer.Stop()
		op.timer = nil
	}

	c.metrics.operationDone(op.kind, op.enqueuedAt, err)
	if err != nil {
		c.logger.Debug("operation failed", LogFields{
			"operation":      op.kind.String(),
			LogFieldPacketID: op.id,
			LogFieldError:    err,
		})
	}
	op.complete(ack, err)
}

func (c *Client) cancelOperation(op *operation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if op.done {
		return
	}

	switch op.state {
	case opQueued:
		if i := slices.Index(c.queue, op); i >= 0 {
			c.queue = slices.Delete(c.queue, i, i+1)
		}
	case opWriting:
		delete(c.writing, op)
	case opInflight:
		c.releaseLocked(op)
	}

	op.stopCancel = nil
	c.completeLocked(op, nil, err)
	c.dispatchLocked()
}

func (c *Client) onPublishWritten(epoch uint64, op *operation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if op.done || c.epoch != epoch {
		return
	}
	delete(c.writing, op)

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	c.completeLocked(op, nil, err)
	c.updateQueueMetricsLocked()
}

func (c *Client) onAckTimeout(epoch uint64, op *operation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if op.done || c.epoch != epoch {
		return
	}

	c.logger.Warn("acknowledgment timed out", LogFields{
		LogFieldPacketType: op.kind.ackType().String(),
		LogFieldPacketID:   op.id,
	})
	c.releaseLocked(op)
	op.timer = nil
	c.completeLocked(op, nil, ErrOperationTimeout)
	c.dispatchLocked()
}

// failInflightLocked fails every operation already handed to the transport.
func (c *Client) failInflightLocked(err error) {
	inflight := slices.SortedFunc(maps.Values(c.inflight), func(a, b *operation) int {
		return a.enqueuedAt.Compare(b.enqueuedAt)
	})
	writing := slices.Collect(maps.Keys(c.writing))

	c.inflight = make(map[uint16]*operation)
	c.writing = make(map[*operation]struct{})
	c.ids.reset()
	c.flow.reset()

	for _, op := range inflight {
		op.holdsFlow = false
		c.completeLocked(op, nil, err)
	}
	for _, op := range writing {
		c.completeLocked(op, nil, err)
	}
	c.updateQueueMetricsLocked()
}

// applyOfflineQueuePolicyLocked fails the queued operations that
// OfflineQueueBehavior does not carry over to the next connection.
func (c *Client) applyOfflineQueuePolicyLocked() {
	policy := c.cfg.OfflineQueueBehavior
	if policy == QueuePreserveAll {
		return
	}

	var kept, failed []*operation
	for _, op := range c.queue {
		if policy.fails(op) {
			failed = append(failed, op)
		} else {
			kept = append(kept, op)
		}
	}
	c.queue = kept

	for _, op := range failed {
		c.completeLocked(op, nil, ErrOfflineQueuePolicy)
	}
	c.updateQueueMetricsLocked()
}

func (c *Client) updateQueueMetricsLocked() {
	c.metrics.queueDepth(len(c.queue), len(c.inflight)+len(c.writing))
}

// Statistics returns a snapshot of the operation queue.
func (c *Client) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var st Statistics
	for _, op := range c.queue {
		st.IncompleteOperationCount++
		st.IncompleteOperationSize += uint64(op.size)
	}
	for op := range c.writing {
		st.IncompleteOperationCount++
		st.IncompleteOperationSize += uint64(op.size)
	}
	for _, op := range c.inflight {
		st.IncompleteOperationCount++
		st.IncompleteOperationSize += uint64(op.size)
		st.UnackedOperationCount++
		st.UnackedOperationSize += uint64(op.size)
	}
	return st
}

// Subscriptions returns the topic filters granted by the server, with the
// granted QoS. The set is cleared when a connection starts without a session.
func (c *Client) Subscriptions() map[string]QoS {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.subscriptions)
}
