// Package kernelproto implements the fixed-header, byte-oriented
// request/response protocol the kernel-module deployment of dPF exposes
// over a pseudo-file (spec §6). It is a pure marshal/unmarshal library: it
// does not open /proc, run a timer, or drive any device — those belong to
// the (out of scope) kernel-module driver itself.
package kernelproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MsgType identifies a request or response payload.
type MsgType uint32

const (
	MsgInit MsgType = iota
	MsgCoreRange
	MsgCoreWeight
	MsgTuning
	MsgDDRBWSet
	MsgPMURead
	MsgMSRRead
)

func (t MsgType) String() string {
	switch t {
	case MsgInit:
		return "INIT"
	case MsgCoreRange:
		return "CORE_RANGE"
	case MsgCoreWeight:
		return "CORE_WEIGHT"
	case MsgTuning:
		return "TUNING"
	case MsgDDRBWSet:
		return "DDRBW_SET"
	case MsgPMURead:
		return "PMU_READ"
	case MsgMSRRead:
		return "MSR_READ"
	default:
		return fmt.Sprintf("MsgType(%d)", uint32(t))
	}
}

// HeaderSize is the fixed 8-byte header every message begins with.
const HeaderSize = 8

// MaxMessageSize is the fixed cap; writes larger than this are rejected
// (spec §6: "Writes larger than a fixed cap are rejected").
const MaxMessageSize = 4096

// NumPMUCounters and NumMSRs size the fixed-length arrays in PMU_READ and
// MSR_READ responses (spec §4.B: 7 programmable + 2 fixed counters; the
// kernel module's NR_OF_MSR covers the prefetcher MSR plus its siblings).
const (
	NumPMUCounters = 9
	NumMSRs        = 4
)

// Header is the fixed 8-byte prefix of every message.
type Header struct {
	Type        MsgType
	PayloadSize uint32
}

// CoreRangeRequest asks the module to monitor cores [CoreStart, CoreEnd].
type CoreRangeRequest struct {
	CoreStart uint32
	CoreEnd   uint32
}

// CoreRangeResponse confirms the accepted range and resulting thread count.
type CoreRangeResponse struct {
	CoreStart   uint32
	CoreEnd     uint32
	ThreadCount uint32
}

// CoreWeightRequest sets a priority weight for each monitored core.
type CoreWeightRequest struct {
	Weights []uint32
}

// CoreWeightResponse echoes back the weights the module accepted.
type CoreWeightResponse struct {
	ConfirmedWeights []uint32
}

// TuningRequest enables (1) or disables (0) the periodic tuning timer.
type TuningRequest struct {
	Enable uint32
}

// TuningResponse reports the resulting enabled/disabled status.
type TuningResponse struct {
	Status uint32
}

// DDRBWSetRequest sets the DDR bandwidth target directly, in MB/s.
type DDRBWSetRequest struct {
	SetValue uint32
}

// DDRBWSetResponse confirms the accepted bandwidth target.
type DDRBWSetResponse struct {
	ConfirmedValue uint32
}

// MSRReadRequest asks for the current prefetcher MSR image of one core.
type MSRReadRequest struct {
	CoreID uint32
}

// MSRReadResponse carries the MSR values for the requested core.
type MSRReadResponse struct {
	Values [NumMSRs]uint64
}

// PMUReadRequest asks for the current PMU counter deltas of one core.
type PMUReadRequest struct {
	CoreID uint32
}

// PMUReadResponse carries the PMU counter values for the requested core.
type PMUReadResponse struct {
	Values [NumPMUCounters]uint64
}

// InitResponse carries the protocol version the module implements.
type InitResponse struct {
	Version uint32
}

// ProtocolVersion is the version reported by INIT responses.
const ProtocolVersion = 1

// EncodeHeader writes an 8-byte header for the given type and payload size.
func EncodeHeader(t MsgType, payloadSize uint32) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(t))
	binary.LittleEndian.PutUint32(buf[4:8], payloadSize)
	return buf
}

// DecodeHeader reads the fixed 8-byte header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("kernelproto: short buffer, need %d bytes, got %d", HeaderSize, len(buf))
	}
	return Header{
		Type:        MsgType(binary.LittleEndian.Uint32(buf[0:4])),
		PayloadSize: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// EncodeCoreRangeRequest marshals a CORE_RANGE request.
func EncodeCoreRangeRequest(req CoreRangeRequest) []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], req.CoreStart)
	binary.LittleEndian.PutUint32(body[4:8], req.CoreEnd)
	return appendMessage(MsgCoreRange, body)
}

// DecodeCoreRangeRequest unmarshals the payload of a CORE_RANGE request.
func DecodeCoreRangeRequest(payload []byte) (CoreRangeRequest, error) {
	if len(payload) < 8 {
		return CoreRangeRequest{}, errShortPayload("CORE_RANGE", 8, len(payload))
	}
	return CoreRangeRequest{
		CoreStart: binary.LittleEndian.Uint32(payload[0:4]),
		CoreEnd:   binary.LittleEndian.Uint32(payload[4:8]),
	}, nil
}

// EncodeCoreRangeResponse marshals a CORE_RANGE response.
func EncodeCoreRangeResponse(resp CoreRangeResponse) []byte {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint32(body[0:4], resp.CoreStart)
	binary.LittleEndian.PutUint32(body[4:8], resp.CoreEnd)
	binary.LittleEndian.PutUint32(body[8:12], resp.ThreadCount)
	return appendMessage(MsgCoreRange, body)
}

// DecodeCoreRangeResponse unmarshals the payload of a CORE_RANGE response.
func DecodeCoreRangeResponse(payload []byte) (CoreRangeResponse, error) {
	if len(payload) < 12 {
		return CoreRangeResponse{}, errShortPayload("CORE_RANGE resp", 12, len(payload))
	}
	return CoreRangeResponse{
		CoreStart:   binary.LittleEndian.Uint32(payload[0:4]),
		CoreEnd:     binary.LittleEndian.Uint32(payload[4:8]),
		ThreadCount: binary.LittleEndian.Uint32(payload[8:12]),
	}, nil
}

// EncodeCoreWeightRequest marshals a CORE_WEIGHT request.
func EncodeCoreWeightRequest(req CoreWeightRequest) []byte {
	body := make([]byte, 4+4*len(req.Weights))
	binary.LittleEndian.PutUint32(body[0:4], uint32(len(req.Weights)))
	for i, w := range req.Weights {
		binary.LittleEndian.PutUint32(body[4+4*i:8+4*i], w)
	}
	return appendMessage(MsgCoreWeight, body)
}

// DecodeCoreWeightRequest unmarshals the payload of a CORE_WEIGHT request.
func DecodeCoreWeightRequest(payload []byte) (CoreWeightRequest, error) {
	if len(payload) < 4 {
		return CoreWeightRequest{}, errShortPayload("CORE_WEIGHT", 4, len(payload))
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	need := 4 + 4*int(count)
	if len(payload) < need {
		return CoreWeightRequest{}, errShortPayload("CORE_WEIGHT weights", need, len(payload))
	}
	weights := make([]uint32, count)
	for i := range weights {
		weights[i] = binary.LittleEndian.Uint32(payload[4+4*i : 8+4*i])
	}
	return CoreWeightRequest{Weights: weights}, nil
}

// EncodeCoreWeightResponse marshals a CORE_WEIGHT response.
func EncodeCoreWeightResponse(resp CoreWeightResponse) []byte {
	body := make([]byte, 4+4*len(resp.ConfirmedWeights))
	binary.LittleEndian.PutUint32(body[0:4], uint32(len(resp.ConfirmedWeights)))
	for i, w := range resp.ConfirmedWeights {
		binary.LittleEndian.PutUint32(body[4+4*i:8+4*i], w)
	}
	return appendMessage(MsgCoreWeight, body)
}

// DecodeCoreWeightResponse unmarshals the payload of a CORE_WEIGHT response.
func DecodeCoreWeightResponse(payload []byte) (CoreWeightResponse, error) {
	req, err := DecodeCoreWeightRequest(payload)
	if err != nil {
		return CoreWeightResponse{}, err
	}
	return CoreWeightResponse{ConfirmedWeights: req.Weights}, nil
}

// EncodeTuningRequest marshals a TUNING request.
func EncodeTuningRequest(req TuningRequest) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, req.Enable)
	return appendMessage(MsgTuning, body)
}

// DecodeTuningRequest unmarshals the payload of a TUNING request.
func DecodeTuningRequest(payload []byte) (TuningRequest, error) {
	if len(payload) < 4 {
		return TuningRequest{}, errShortPayload("TUNING", 4, len(payload))
	}
	return TuningRequest{Enable: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// EncodeTuningResponse marshals a TUNING response.
func EncodeTuningResponse(resp TuningResponse) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, resp.Status)
	return appendMessage(MsgTuning, body)
}

// DecodeTuningResponse unmarshals the payload of a TUNING response.
func DecodeTuningResponse(payload []byte) (TuningResponse, error) {
	if len(payload) < 4 {
		return TuningResponse{}, errShortPayload("TUNING resp", 4, len(payload))
	}
	return TuningResponse{Status: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// EncodeDDRBWSetRequest marshals a DDRBW_SET request.
func EncodeDDRBWSetRequest(req DDRBWSetRequest) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, req.SetValue)
	return appendMessage(MsgDDRBWSet, body)
}

// DecodeDDRBWSetRequest unmarshals the payload of a DDRBW_SET request.
func DecodeDDRBWSetRequest(payload []byte) (DDRBWSetRequest, error) {
	if len(payload) < 4 {
		return DDRBWSetRequest{}, errShortPayload("DDRBW_SET", 4, len(payload))
	}
	return DDRBWSetRequest{SetValue: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// EncodeDDRBWSetResponse marshals a DDRBW_SET response.
func EncodeDDRBWSetResponse(resp DDRBWSetResponse) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, resp.ConfirmedValue)
	return appendMessage(MsgDDRBWSet, body)
}

// DecodeDDRBWSetResponse unmarshals the payload of a DDRBW_SET response.
func DecodeDDRBWSetResponse(payload []byte) (DDRBWSetResponse, error) {
	if len(payload) < 4 {
		return DDRBWSetResponse{}, errShortPayload("DDRBW_SET resp", 4, len(payload))
	}
	return DDRBWSetResponse{ConfirmedValue: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// EncodeMSRReadRequest marshals an MSR_READ request.
func EncodeMSRReadRequest(req MSRReadRequest) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, req.CoreID)
	return appendMessage(MsgMSRRead, body)
}

// DecodeMSRReadRequest unmarshals the payload of an MSR_READ request.
func DecodeMSRReadRequest(payload []byte) (MSRReadRequest, error) {
	if len(payload) < 4 {
		return MSRReadRequest{}, errShortPayload("MSR_READ", 4, len(payload))
	}
	return MSRReadRequest{CoreID: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// EncodeMSRReadResponse marshals an MSR_READ response.
func EncodeMSRReadResponse(resp MSRReadResponse) []byte {
	body := make([]byte, 8*NumMSRs)
	for i, v := range resp.Values {
		binary.LittleEndian.PutUint64(body[8*i:8*i+8], v)
	}
	return appendMessage(MsgMSRRead, body)
}

// DecodeMSRReadResponse unmarshals the payload of an MSR_READ response.
func DecodeMSRReadResponse(payload []byte) (MSRReadResponse, error) {
	if len(payload) < 8*NumMSRs {
		return MSRReadResponse{}, errShortPayload("MSR_READ resp", 8*NumMSRs, len(payload))
	}
	var resp MSRReadResponse
	for i := range resp.Values {
		resp.Values[i] = binary.LittleEndian.Uint64(payload[8*i : 8*i+8])
	}
	return resp, nil
}

// EncodePMUReadRequest marshals a PMU_READ request.
func EncodePMUReadRequest(req PMUReadRequest) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, req.CoreID)
	return appendMessage(MsgPMURead, body)
}

// DecodePMUReadRequest unmarshals the payload of a PMU_READ request.
func DecodePMUReadRequest(payload []byte) (PMUReadRequest, error) {
	if len(payload) < 4 {
		return PMUReadRequest{}, errShortPayload("PMU_READ", 4, len(payload))
	}
	return PMUReadRequest{CoreID: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// EncodePMUReadResponse marshals a PMU_READ response.
func EncodePMUReadResponse(resp PMUReadResponse) []byte {
	body := make([]byte, 8*NumPMUCounters)
	for i, v := range resp.Values {
		binary.LittleEndian.PutUint64(body[8*i:8*i+8], v)
	}
	return appendMessage(MsgPMURead, body)
}

// DecodePMUReadResponse unmarshals the payload of a PMU_READ response.
func DecodePMUReadResponse(payload []byte) (PMUReadResponse, error) {
	if len(payload) < 8*NumPMUCounters {
		return PMUReadResponse{}, errShortPayload("PMU_READ resp", 8*NumPMUCounters, len(payload))
	}
	var resp PMUReadResponse
	for i := range resp.Values {
		resp.Values[i] = binary.LittleEndian.Uint64(payload[8*i : 8*i+8])
	}
	return resp, nil
}

// EncodeInitResponse marshals an INIT response.
func EncodeInitResponse(resp InitResponse) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, resp.Version)
	return appendMessage(MsgInit, body)
}

// DecodeInitResponse unmarshals the payload of an INIT response.
func DecodeInitResponse(payload []byte) (InitResponse, error) {
	if len(payload) < 4 {
		return InitResponse{}, errShortPayload("INIT resp", 4, len(payload))
	}
	return InitResponse{Version: binary.LittleEndian.Uint32(payload[0:4])}, nil
}

// appendMessage prefixes body with its header. It does not check
// MaxMessageSize; SplitMessage enforces the cap on the receiving side.
func appendMessage(t MsgType, body []byte) []byte {
	msg := make([]byte, 0, HeaderSize+len(body))
	buf := bytes.NewBuffer(msg)
	buf.Write(EncodeHeader(t, uint32(len(body))))
	buf.Write(body)
	return buf.Bytes()
}

// SplitMessage validates and splits a full wire message into its header and
// payload, rejecting anything over MaxMessageSize or shorter than the
// header promises.
func SplitMessage(msg []byte) (Header, []byte, error) {
	if len(msg) > MaxMessageSize {
		return Header{}, nil, fmt.Errorf("kernelproto: message of %d bytes exceeds cap %d", len(msg), MaxMessageSize)
	}
	hdr, err := DecodeHeader(msg)
	if err != nil {
		return Header{}, nil, err
	}
	payload := msg[HeaderSize:]
	if uint32(len(payload)) < hdr.PayloadSize {
		return Header{}, nil, fmt.Errorf("kernelproto: truncated payload, header promises %d bytes, have %d", hdr.PayloadSize, len(payload))
	}
	return hdr, payload[:hdr.PayloadSize], nil
}

func errShortPayload(what string, want, got int) error {
	return fmt.Errorf("kernelproto: %s payload too short, need %d bytes, got %d", what, want, got)
}
