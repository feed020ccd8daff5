package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/requestmanager"
)

// wireOp is the oneM2M primitive-content `op` value, distinct from
// model.Operation (which orders its constants for Permission lookups).
type wireOp int

const (
	wireOpCreate   wireOp = 1
	wireOpRetrieve wireOp = 2
	wireOpUpdate   wireOp = 3
	wireOpDelete   wireOp = 4
	wireOpNotify   wireOp = 5
)

// primitiveContent is the oneM2M request/response envelope carried as
// MQTT payload, mirroring MQTTClient.py's `resp`/request dict shape.
type primitiveContent struct {
	From            string                     `json:"fr,omitempty"`
	To              string                     `json:"to,omitempty"`
	Op              wireOp                     `json:"op,omitempty"`
	RequestID       string                     `json:"rqi,omitempty"`
	ReleaseVersion  string                     `json:"rvi,omitempty"`
	VendorInfo      string                     `json:"vsi,omitempty"`
	ResourceType    model.ResourceType         `json:"ty,omitempty"`
	OriginationTime string                     `json:"ot,omitempty"`
	ResponseCode    int                        `json:"rsc,omitempty"`
	Content         map[string]json.RawMessage `json:"pc,omitempty"`
}

// handleRequest builds a paho MessageHandler that dissects an incoming
// request topic/payload, dispatches it, and publishes the response on
// the matching topic of the given kind.
func (s *Server) handleRequest(kind responseKind) mqtt.MessageHandler {
	prefixSegments := segmentCount(s.config.MQTT.TopicPrefix)

	return func(client mqtt.Client, msg mqtt.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rt, ok := parseRequestTopic(msg.Topic(), prefixSegments)
		if !ok {
			s.logger.Warn("malformed MQTT request topic", zap.String("topic", msg.Topic()))
			return
		}

		var pc primitiveContent
		if err := json.Unmarshal(msg.Payload(), &pc); err != nil {
			s.publishResponse(client, kind, rt, s.errorResponse(model.NewError(model.RSCBadRequest, "malformed primitive content: %s", err)))
			return
		}
		if pc.From == "" {
			pc.From = rt.From
		}
		if pc.To == "" {
			pc.To = rt.To
		}

		result := s.dispatch(ctx, pc)
		s.publishResponse(client, kind, rt, s.successResponse(pc, result))
	}
}

func (s *Server) dispatch(ctx context.Context, pc primitiveContent) model.Result {
	req, cerr := s.requestManager.Dissect(requestmanager.RawRequest{
		Operation:      operationFromWireOp(pc.Op),
		Originator:     pc.From,
		RequestID:      pc.RequestID,
		ReleaseVersion: pc.ReleaseVersion,
		To:             pc.To,
		VendorInfo:     pc.VendorInfo,
		ResourceType:   strconv.Itoa(int(pc.ResourceType)),
	}, time.Now())
	if cerr != nil {
		return model.Err(cerr)
	}
	pc.From = req.From

	ri, virtual, cerr := s.dispatcher.ResolveAddress(ctx, pc.To)
	if cerr != nil {
		return model.Err(cerr)
	}

	switch pc.Op {
	case wireOpRetrieve:
		if virtual != "" {
			return s.dispatcher.RetrieveVirtual(ctx, ri, virtual, pc.From)
		}
		return s.dispatcher.Retrieve(ctx, ri, pc.From)
	case wireOpCreate:
		outerKey, body, cerr := unwrapPrimitiveContent(pc.Content)
		if cerr != nil {
			return model.Err(cerr)
		}
		if virtual == "fopt" {
			return s.dispatcher.CreateViaGroup(ctx, ri, outerKey, body, pc.From, pc.ResourceType)
		}
		return s.dispatcher.Create(ctx, ri, outerKey, body, pc.From, pc.ResourceType)
	case wireOpUpdate:
		_, body, cerr := unwrapPrimitiveContent(pc.Content)
		if cerr != nil {
			return model.Err(cerr)
		}
		if virtual == "fopt" {
			return s.dispatcher.UpdateViaGroup(ctx, ri, body, pc.From)
		}
		return s.dispatcher.Update(ctx, ri, body, pc.From)
	case wireOpDelete:
		if virtual == "fopt" {
			return s.dispatcher.DeleteViaGroup(ctx, ri, pc.From)
		}
		return s.dispatcher.Delete(ctx, ri, pc.From)
	default:
		return model.Err(model.NewError(model.RSCBadRequest, "unsupported or missing operation code: %d", pc.Op))
	}
}

func operationFromWireOp(op wireOp) model.Operation {
	switch op {
	case wireOpCreate:
		return model.OpCreate
	case wireOpRetrieve:
		return model.OpRetrieve
	case wireOpUpdate:
		return model.OpUpdate
	case wireOpDelete:
		return model.OpDelete
	case wireOpNotify:
		return model.OpNotify
	default:
		return 0
	}
}

// unwrapPrimitiveContent mirrors internal/transport/http's envelope
// unwrapping: `pc` must carry exactly one outer "m2m:<type>" key.
func unwrapPrimitiveContent(pc map[string]json.RawMessage) (string, map[string]any, *model.CSEError) {
	if len(pc) != 1 {
		return "", nil, model.NewError(model.RSCBadRequest, "primitive content must have exactly one outer resource key")
	}
	for k, raw := range pc {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return "", nil, model.NewError(model.RSCBadRequest, "malformed %q body: %s", k, err)
		}
		return k, body, nil
	}
	return "", nil, nil
}

func (s *Server) successResponse(req primitiveContent, result model.Result) primitiveContent {
	resp := primitiveContent{
		From:           s.config.CSE.CSEID,
		To:             req.From,
		RequestID:      req.RequestID,
		ReleaseVersion: req.ReleaseVersion,
		ResponseCode:   int(result.RSC),
	}
	if result.Resource != nil {
		resp.Content = rawEnvelope(serializeResource(result.Resource))
	} else if result.Content != nil {
		resp.Content = rawEnvelope(map[string]any{"content": result.Content})
	}
	return resp
}

func (s *Server) errorResponse(cerr *model.CSEError) primitiveContent {
	return primitiveContent{From: s.config.CSE.CSEID, ResponseCode: int(cerr.RSC)}
}

func rawEnvelope(m map[string]any) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[k] = b
	}
	return out
}

func (s *Server) publishResponse(client mqtt.Client, kind responseKind, rt requestTopic, resp primitiveContent) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal MQTT response", zap.Error(err))
		return
	}
	topic := responseTopic(s.config.MQTT.TopicPrefix, kind, rt.To, rt.From, rt.ContentType)
	token := client.Publish(topic, s.config.MQTT.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		s.logger.Warn("timed out publishing MQTT response", zap.String("topic", topic))
		return
	}
	if token.Error() != nil {
		s.logger.Error("failed to publish MQTT response", zap.String("topic", topic), zap.Error(token.Error()))
	}
}
