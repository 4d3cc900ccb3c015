// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tachyon-beep/murk/pkg/schema"
)

// All integers are little-endian. Strings and byte arrays are
// length-prefixed with a u32. No compression, no alignment padding, no
// self-describing schema.

func writeU8(w io.Writer, v uint8) error    { _, err := w.Write([]byte{v}); return err }
func writeU32(w io.Writer, v uint32) error  { return binary.Write(w, binary.LittleEndian, v) }
func writeU64(w io.Writer, v uint64) error  { return binary.Write(w, binary.LittleEndian, v) }
func writeF32(w io.Writer, v float32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeF64(w io.Writer, v float64) error { return binary.Write(w, binary.LittleEndian, v) }

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readString(r io.Reader) (string, error) {
	b, err := readBytesPrefixed(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytesPrefixed(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated length-prefixed bytes: %v", ErrMalformedFrame, err)
	}
	return buf, nil
}

// EncodeHeader writes the file header: magic, version, build metadata and
// the init descriptor.
func EncodeHeader(w io.Writer, meta BuildMetadata, init InitDescriptor) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	if err := writeU8(w, FormatVersion); err != nil {
		return err
	}
	for _, s := range []string{meta.Toolchain, meta.TargetTriple, meta.EngineVersion, meta.CompileFlags} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if err := writeU64(w, init.Seed); err != nil {
		return err
	}
	if err := writeU64(w, init.ConfigHash); err != nil {
		return err
	}
	if err := writeU32(w, init.FieldCount); err != nil {
		return err
	}
	if err := writeU64(w, init.CellCount); err != nil {
		return err
	}
	return writeBytes(w, init.SpaceDescriptor)
}

// DecodeHeader reads and validates the file header.
func DecodeHeader(r io.Reader) (BuildMetadata, InitDescriptor, error) {
	var meta BuildMetadata
	var init InitDescriptor

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return meta, init, err
	}
	if magic != Magic {
		return meta, init, ErrInvalidMagic
	}

	version, err := readU8(r)
	if err != nil {
		return meta, init, err
	}
	if version != FormatVersion {
		return meta, init, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	for _, dst := range []*string{&meta.Toolchain, &meta.TargetTriple, &meta.EngineVersion, &meta.CompileFlags} {
		if *dst, err = readString(r); err != nil {
			return meta, init, err
		}
	}

	if init.Seed, err = readU64(r); err != nil {
		return meta, init, err
	}
	if init.ConfigHash, err = readU64(r); err != nil {
		return meta, init, err
	}
	if init.FieldCount, err = readU32(r); err != nil {
		return meta, init, err
	}
	if init.CellCount, err = readU64(r); err != nil {
		return meta, init, err
	}
	if init.SpaceDescriptor, err = readBytesPrefixed(r); err != nil {
		return meta, init, err
	}
	return meta, init, nil
}

// EncodeFrame writes one tick frame.
func EncodeFrame(w io.Writer, frame *Frame) error {
	if err := writeU64(w, frame.TickID); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(frame.Commands))); err != nil {
		return err
	}
	for _, cmd := range frame.Commands {
		if err := writeU8(w, cmd.PayloadType); err != nil {
			return err
		}
		if err := writeBytes(w, cmd.Payload); err != nil {
			return err
		}
		if err := writeU8(w, cmd.PriorityClass); err != nil {
			return err
		}
		if err := writeU64(w, cmd.SourceID); err != nil {
			return err
		}
		if err := writeU64(w, cmd.SourceSeq); err != nil {
			return err
		}
	}
	return writeU64(w, frame.SnapshotHash)
}

// DecodeFrame reads one frame. Clean EOF between frames returns
// (nil, nil); a truncated frame is an error.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var tickBuf [8]byte
	if _, err := io.ReadFull(r, tickBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	frame := &Frame{TickID: binary.LittleEndian.Uint64(tickBuf[:])}

	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated command count: %v", ErrMalformedFrame, err)
	}
	frame.Commands = make([]SerializedCommand, 0, count)
	for i := uint32(0); i < count; i++ {
		var cmd SerializedCommand
		if cmd.PayloadType, err = readU8(r); err != nil {
			return nil, fmt.Errorf("%w: truncated command: %v", ErrMalformedFrame, err)
		}
		if cmd.Payload, err = readBytesPrefixed(r); err != nil {
			return nil, err
		}
		if cmd.PriorityClass, err = readU8(r); err != nil {
			return nil, fmt.Errorf("%w: truncated command: %v", ErrMalformedFrame, err)
		}
		if cmd.SourceID, err = readU64(r); err != nil {
			return nil, fmt.Errorf("%w: truncated command: %v", ErrMalformedFrame, err)
		}
		if cmd.SourceSeq, err = readU64(r); err != nil {
			return nil, fmt.Errorf("%w: truncated command: %v", ErrMalformedFrame, err)
		}
		frame.Commands = append(frame.Commands, cmd)
	}

	if frame.SnapshotHash, err = readU64(r); err != nil {
		return nil, fmt.Errorf("%w: truncated snapshot hash: %v", ErrMalformedFrame, err)
	}
	return frame, nil
}

// ─── Command payload serialization ───────────────────────────────────────────

func appendCoord(buf []byte, coord schema.Coord) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(coord)))
	for _, v := range coord {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	return buf
}

func decodeCoord(data []byte, offset *int) (schema.Coord, error) {
	if *offset+4 > len(data) {
		return nil, fmt.Errorf("%w: truncated coord length", ErrMalformedFrame)
	}
	n := int(binary.LittleEndian.Uint32(data[*offset:]))
	*offset += 4
	if *offset+4*n > len(data) {
		return nil, fmt.Errorf("%w: truncated coord data", ErrMalformedFrame)
	}
	coord := make(schema.Coord, n)
	for i := 0; i < n; i++ {
		coord[i] = int32(binary.LittleEndian.Uint32(data[*offset:]))
		*offset += 4
	}
	return coord, nil
}

// SerializeCommand converts a command to wire form. ExpiresAfterTick and
// ArrivalSeq are intentionally not recorded: replay re-submits each frame
// for its own tick.
func SerializeCommand(cmd *schema.Command) SerializedCommand {
	var buf []byte
	switch p := cmd.Payload.(type) {
	case schema.MovePayload:
		buf = binary.LittleEndian.AppendUint64(buf, p.EntityID)
		buf = appendCoord(buf, p.Target)
	case schema.SpawnPayload:
		buf = appendCoord(buf, p.Coord)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.FieldValues)))
		for _, fv := range p.FieldValues {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(fv.Field))
			buf = binary.LittleEndian.AppendUint32(buf, math32bits(fv.Value))
		}
	case schema.DespawnPayload:
		buf = binary.LittleEndian.AppendUint64(buf, p.EntityID)
	case schema.SetFieldPayload:
		buf = appendCoord(buf, p.Coord)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Field))
		buf = binary.LittleEndian.AppendUint32(buf, math32bits(p.Value))
	case schema.CustomPayload:
		buf = binary.LittleEndian.AppendUint32(buf, p.TypeID)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Data)))
		buf = append(buf, p.Data...)
	case schema.SetParameterPayload:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Key))
		buf = binary.LittleEndian.AppendUint64(buf, math64bits(p.Value))
	case schema.SetParameterBatchPayload:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Params)))
		for _, pv := range p.Params {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(pv.Key))
			buf = binary.LittleEndian.AppendUint64(buf, math64bits(pv.Value))
		}
	}
	return SerializedCommand{
		PayloadType:   uint8(cmd.Payload.PayloadType()),
		Payload:       buf,
		PriorityClass: cmd.PriorityClass,
		SourceID:      cmd.SourceID,
		SourceSeq:     cmd.SourceSeq,
	}
}

// DeserializeCommand reconstructs a command from wire form. The expiry is
// set far in the future and the arrival sequence is restamped by the
// ingress queue on submission.
func DeserializeCommand(sc *SerializedCommand) (schema.Command, error) {
	data := sc.Payload
	var payload schema.CommandPayload

	switch schema.PayloadType(sc.PayloadType) {
	case schema.PayloadMove:
		if len(data) < 8 {
			return schema.Command{}, fmt.Errorf("%w: truncated move payload", ErrMalformedFrame)
		}
		p := schema.MovePayload{EntityID: binary.LittleEndian.Uint64(data)}
		offset := 8
		coord, err := decodeCoord(data, &offset)
		if err != nil {
			return schema.Command{}, err
		}
		p.Target = coord
		payload = p

	case schema.PayloadSpawn:
		offset := 0
		coord, err := decodeCoord(data, &offset)
		if err != nil {
			return schema.Command{}, err
		}
		if offset+4 > len(data) {
			return schema.Command{}, fmt.Errorf("%w: truncated spawn count", ErrMalformedFrame)
		}
		count := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		p := schema.SpawnPayload{Coord: coord}
		for i := 0; i < count; i++ {
			if offset+8 > len(data) {
				return schema.Command{}, fmt.Errorf("%w: truncated spawn field values", ErrMalformedFrame)
			}
			p.FieldValues = append(p.FieldValues, schema.FieldValue{
				Field: schema.FieldID(binary.LittleEndian.Uint32(data[offset:])),
				Value: bits32math(binary.LittleEndian.Uint32(data[offset+4:])),
			})
			offset += 8
		}
		payload = p

	case schema.PayloadDespawn:
		if len(data) < 8 {
			return schema.Command{}, fmt.Errorf("%w: truncated despawn payload", ErrMalformedFrame)
		}
		payload = schema.DespawnPayload{EntityID: binary.LittleEndian.Uint64(data)}

	case schema.PayloadSetField:
		offset := 0
		coord, err := decodeCoord(data, &offset)
		if err != nil {
			return schema.Command{}, err
		}
		if offset+8 > len(data) {
			return schema.Command{}, fmt.Errorf("%w: truncated set-field payload", ErrMalformedFrame)
		}
		payload = schema.SetFieldPayload{
			Coord: coord,
			Field: schema.FieldID(binary.LittleEndian.Uint32(data[offset:])),
			Value: bits32math(binary.LittleEndian.Uint32(data[offset+4:])),
		}

	case schema.PayloadCustom:
		if len(data) < 8 {
			return schema.Command{}, fmt.Errorf("%w: truncated custom payload", ErrMalformedFrame)
		}
		n := int(binary.LittleEndian.Uint32(data[4:]))
		if 8+n > len(data) {
			return schema.Command{}, fmt.Errorf("%w: truncated custom data", ErrMalformedFrame)
		}
		payload = schema.CustomPayload{
			TypeID: binary.LittleEndian.Uint32(data),
			Data:   append([]byte(nil), data[8:8+n]...),
		}

	case schema.PayloadSetParameter:
		if len(data) < 12 {
			return schema.Command{}, fmt.Errorf("%w: truncated set-parameter payload", ErrMalformedFrame)
		}
		payload = schema.SetParameterPayload{
			Key:   schema.ParameterKey(binary.LittleEndian.Uint32(data)),
			Value: bits64math(binary.LittleEndian.Uint64(data[4:])),
		}

	case schema.PayloadSetParameterBatch:
		if len(data) < 4 {
			return schema.Command{}, fmt.Errorf("%w: truncated parameter batch", ErrMalformedFrame)
		}
		count := int(binary.LittleEndian.Uint32(data))
		offset := 4
		var p schema.SetParameterBatchPayload
		for i := 0; i < count; i++ {
			if offset+12 > len(data) {
				return schema.Command{}, fmt.Errorf("%w: truncated parameter batch entry", ErrMalformedFrame)
			}
			p.Params = append(p.Params, schema.ParameterValue{
				Key:   schema.ParameterKey(binary.LittleEndian.Uint32(data[offset:])),
				Value: bits64math(binary.LittleEndian.Uint64(data[offset+4:])),
			})
			offset += 12
		}
		payload = p

	default:
		return schema.Command{}, fmt.Errorf("%w: unknown payload type %d", ErrMalformedFrame, sc.PayloadType)
	}

	return schema.Command{
		Payload:          payload,
		ExpiresAfterTick: schema.TickID(^uint64(0)),
		SourceID:         sc.SourceID,
		SourceSeq:        sc.SourceSeq,
		PriorityClass:    sc.PriorityClass,
	}, nil
}
