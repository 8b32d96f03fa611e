// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package metric

import "go.opentelemetry.io/otel/metric"

// ServerMetric groups the instruments describing the chat server.
//
// Instruments:
//   - bavarde.clients.count     (Int64ObservableGauge)
//   - bavarde.sessions.active   (Int64ObservableGauge)
//   - bavarde.messages.sent      (Int64Counter)
//   - bavarde.messages.delivered (Int64Counter)
//   - bavarde.messages.bounced   (Int64Counter)
type ServerMetric struct {
	clientsCount      metric.Int64ObservableGauge
	sessionsActive    metric.Int64ObservableGauge
	messagesSent      metric.Int64Counter
	messagesDelivered metric.Int64Counter
	messagesBounced   metric.Int64Counter
}

// NewServerMetric creates the chat server instruments on meter. It fails as
// soon as one instrument cannot be created.
func NewServerMetric(meter metric.Meter) (*ServerMetric, error) {
	var instruments ServerMetric
	var err error

	if instruments.clientsCount, err = meter.Int64ObservableGauge(
		"bavarde.clients.count",
		metric.WithDescription("Number of handles registered in the directory"),
	); err != nil {
		return nil, err
	}

	if instruments.sessionsActive, err = meter.Int64ObservableGauge(
		"bavarde.sessions.active",
		metric.WithDescription("Number of client connections being served"),
	); err != nil {
		return nil, err
	}

	if instruments.messagesSent, err = meter.Int64Counter(
		"bavarde.messages.sent",
		metric.WithDescription("Total number of messages accepted for delivery"),
	); err != nil {
		return nil, err
	}

	if instruments.messagesDelivered, err = meter.Int64Counter(
		"bavarde.messages.delivered",
		metric.WithDescription("Total number of messages written to their recipient"),
	); err != nil {
		return nil, err
	}

	if instruments.messagesBounced, err = meter.Int64Counter(
		"bavarde.messages.bounced",
		metric.WithDescription("Total number of messages bounced back to their sender"),
	); err != nil {
		return nil, err
	}

	return &instruments, nil
}

// ClientsCount returns the gauge reporting the registered handles.
// Use with Meter.RegisterCallback.
func (x *ServerMetric) ClientsCount() metric.Int64ObservableGauge {
	return x.clientsCount
}

// SessionsActive returns the gauge reporting the connections being served.
// Use with Meter.RegisterCallback.
func (x *ServerMetric) SessionsActive() metric.Int64ObservableGauge {
	return x.sessionsActive
}

// MessagesSent returns the counter of accepted SEND requests
func (x *ServerMetric) MessagesSent() metric.Int64Counter {
	return x.messagesSent
}

// MessagesDelivered returns the counter of MESSAGE packets written
func (x *ServerMetric) MessagesDelivered() metric.Int64Counter {
	return x.messagesDelivered
}

// MessagesBounced returns the counter of BOUNCE notices produced
func (x *ServerMetric) MessagesBounced() metric.Int64Counter {
	return x.messagesBounced
}
