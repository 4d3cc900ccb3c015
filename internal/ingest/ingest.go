// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest turns externally published line-protocol messages into
// engine commands. Each line names a field (the measurement), addresses a
// cell through c0..c3 tags and carries the new value:
//
//	energy,c0=3 value=1.5
//	heat,c0=2,c1=4 value=0.25 1712000000000000000
//
// Optional tags: priority (0-255), expires (absolute tick), source.
package ingest

import (
	"fmt"
	"strconv"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	influx "github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/tachyon-beep/murk/pkg/nats"
	"github.com/tachyon-beep/murk/pkg/schema"
)

// CommandSink accepts command batches; satisfied by realtime.World.
type CommandSink interface {
	SubmitCommands(commands []schema.Command) ([]schema.Receipt, error)
}

// Ingestor decodes line protocol into SetField commands and forwards them
// to a sink.
type Ingestor struct {
	sink     CommandSink
	fields   map[string]schema.FieldID
	noExpiry schema.TickID
}

// New creates an ingestor resolving field names through fieldsByName.
func New(sink CommandSink, fieldsByName map[string]schema.FieldID) *Ingestor {
	return &Ingestor{
		sink:     sink,
		fields:   fieldsByName,
		noExpiry: schema.TickID(^uint64(0)),
	}
}

// SubscribeAll registers the ingestor on every configured subject of the
// given NATS client.
func (in *Ingestor) SubscribeAll(client *nats.Client, subjects []string) error {
	for _, subject := range subjects {
		if err := client.Subscribe(subject, in.HandleMessage); err != nil {
			return err
		}
	}
	return nil
}

// HandleMessage decodes one message (possibly many lines) and submits the
// batch. Malformed lines are logged and skipped; the remaining lines
// still go through.
func (in *Ingestor) HandleMessage(subject string, data []byte) {
	commands, err := in.Decode(data)
	if err != nil {
		cclog.Warnf("[INGEST]> dropping message on %q: %v", subject, err)
		return
	}
	if len(commands) == 0 {
		return
	}
	receipts, err := in.sink.SubmitCommands(commands)
	if err != nil {
		cclog.Warnf("[INGEST]> submit failed: %v", err)
		return
	}
	for _, r := range receipts {
		if !r.Accepted {
			cclog.Debugf("[INGEST]> command %d rejected: %s", r.CommandIndex, r.Reason)
		}
	}
}

// Decode parses line protocol into commands.
func (in *Ingestor) Decode(data []byte) ([]schema.Command, error) {
	dec := influx.NewDecoderWithBytes(data)
	var commands []schema.Command

	for dec.Next() {
		cmd, err := in.decodeLine(dec)
		if err != nil {
			cclog.Warnf("[INGEST]> skipping line: %v", err)
			continue
		}
		commands = append(commands, cmd)
	}
	if err := dec.Err(); err != nil {
		return commands, fmt.Errorf("line protocol: %w", err)
	}
	return commands, nil
}

func (in *Ingestor) decodeLine(dec *influx.Decoder) (schema.Command, error) {
	measurement, err := dec.Measurement()
	if err != nil {
		return schema.Command{}, err
	}
	fieldID, ok := in.fields[string(measurement)]
	if !ok {
		return schema.Command{}, fmt.Errorf("unknown field %q", measurement)
	}

	coord := make(schema.Coord, 0, 4)
	coordSet := [4]bool{}
	cmd := schema.Command{ExpiresAfterTick: in.noExpiry, PriorityClass: 1}

	for {
		key, value, err := dec.NextTag()
		if err != nil {
			return schema.Command{}, err
		}
		if key == nil {
			break
		}
		switch string(key) {
		case "c0", "c1", "c2", "c3":
			axis := int(key[1] - '0')
			v, err := strconv.ParseInt(string(value), 10, 32)
			if err != nil {
				return schema.Command{}, fmt.Errorf("tag %s: %w", key, err)
			}
			for len(coord) <= axis {
				coord = append(coord, 0)
			}
			coord[axis] = int32(v)
			coordSet[axis] = true
		case "priority":
			v, err := strconv.ParseUint(string(value), 10, 8)
			if err != nil {
				return schema.Command{}, fmt.Errorf("tag priority: %w", err)
			}
			cmd.PriorityClass = uint8(v)
		case "expires":
			v, err := strconv.ParseUint(string(value), 10, 64)
			if err != nil {
				return schema.Command{}, fmt.Errorf("tag expires: %w", err)
			}
			cmd.ExpiresAfterTick = schema.TickID(v)
		case "source":
			v, err := strconv.ParseUint(string(value), 10, 64)
			if err != nil {
				return schema.Command{}, fmt.Errorf("tag source: %w", err)
			}
			cmd.SourceID = v
		}
	}
	if !coordSet[0] {
		return schema.Command{}, fmt.Errorf("missing c0 coordinate tag")
	}

	var fieldValue float32
	haveValue := false
	for {
		key, value, err := dec.NextField()
		if err != nil {
			return schema.Command{}, err
		}
		if key == nil {
			break
		}
		if string(key) != "value" {
			continue
		}
		switch v := value.Interface().(type) {
		case float64:
			fieldValue = float32(v)
		case int64:
			fieldValue = float32(v)
		case uint64:
			fieldValue = float32(v)
		default:
			return schema.Command{}, fmt.Errorf("value has unsupported type %T", v)
		}
		haveValue = true
	}
	if !haveValue {
		return schema.Command{}, fmt.Errorf("missing value field")
	}

	cmd.Payload = schema.SetFieldPayload{Coord: coord, Field: fieldID, Value: fieldValue}
	return cmd, nil
}
