package http

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/requestmanager"
)

// resolveAddress turns ri into a (`ri`, virtual suffix) pair per spec.md
// §4.7: CSE-relative/SP-relative/Absolute classification, trailing
// la/ol/fopt/pcu stripping, and "-" -> local CSE rn rewriting.
func (s *Server) resolveAddress(c *gin.Context, to string) (string, string, bool) {
	ri, virtual, cerr := s.dispatcher.ResolveAddress(c.Request.Context(), to)
	if cerr != nil {
		s.writeResult(c, model.Err(cerr))
		return "", "", false
	}
	return ri, virtual, true
}

// dissect builds a RawRequest from the HTTP headers/query/path and runs
// it through the RequestManager, writing and short-circuiting on failure.
func (s *Server) dissect(c *gin.Context, op model.Operation, declaredTy model.ResourceType, body map[string]any) (*model.CSERequest, bool) {
	raw := requestmanager.RawRequest{
		Operation:           op,
		Originator:          c.GetHeader(headerOrigin),
		RequestID:           c.GetHeader(headerRI),
		ReleaseVersion:      c.GetHeader(headerRVI),
		To:                  strings.Trim(c.Param("path"), "/"),
		VendorInfo:          c.GetHeader(headerVSI),
		Serialization:       c.ContentType(),
		RequestExpiry:       c.GetHeader(headerRET),
		ResultExpiry:        c.GetHeader(headerRST),
		EventCategory:       c.GetHeader(headerEC),
		ResultContent:       c.Query("rcn"),
		ResponseType:        c.Query("rp"),
		DiscoveryResultType: c.Query("drt"),
		ResourceTypes:       c.QueryArray("ty"),
		ContentTypes:        c.QueryArray("cty"),
		Labels:              c.QueryArray("lbl"),
		NotificationURI:     splitHeaderList(c.GetHeader(headerRTU)),
		PrimitiveContent:    body,
	}
	if op == model.OpCreate {
		raw.ResourceType = strconv.Itoa(int(declaredTy))
	}

	req, cerr := s.requestManager.Dissect(raw, time.Now())
	if cerr != nil {
		s.writeResult(c, model.Err(cerr))
		return nil, false
	}
	return req, true
}

func splitHeaderList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleRetrieve(c *gin.Context) {
	req, ok := s.dissect(c, model.OpRetrieve, model.TypeUnknown, nil)
	if !ok {
		return
	}
	ri, virtual, ok := s.resolveAddress(c, req.To)
	if !ok {
		return
	}
	var result model.Result
	if virtual != "" {
		result = s.dispatcher.RetrieveVirtual(c.Request.Context(), ri, virtual, req.From)
	} else {
		result = s.dispatcher.Retrieve(c.Request.Context(), ri, req.From)
	}
	s.writeResult(c, result)
}

func (s *Server) handleCreate(c *gin.Context) {
	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&envelope); err != nil {
		s.writeResult(c, model.Err(model.NewError(model.RSCBadRequest, "malformed request body: %s", err)))
		return
	}
	outerKey, body, cerr := unwrapEnvelope(envelope)
	if cerr != nil {
		s.writeResult(c, model.Err(cerr))
		return
	}
	declaredTy := tyFromContentType(c.GetHeader("Content-Type"))

	req, ok := s.dissect(c, model.OpCreate, declaredTy, body)
	if !ok {
		return
	}
	parentRI, virtual, ok := s.resolveAddress(c, req.To)
	if !ok {
		return
	}

	var result model.Result
	if virtual == "fopt" {
		result = s.dispatcher.CreateViaGroup(c.Request.Context(), parentRI, outerKey, body, req.From, declaredTy)
	} else {
		result = s.dispatcher.Create(c.Request.Context(), parentRI, outerKey, body, req.From, declaredTy)
	}
	s.writeResult(c, result)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&envelope); err != nil {
		s.writeResult(c, model.Err(model.NewError(model.RSCBadRequest, "malformed request body: %s", err)))
		return
	}
	_, patch, cerr := unwrapEnvelope(envelope)
	if cerr != nil {
		s.writeResult(c, model.Err(cerr))
		return
	}

	req, ok := s.dissect(c, model.OpUpdate, model.TypeUnknown, patch)
	if !ok {
		return
	}
	ri, virtual, ok := s.resolveAddress(c, req.To)
	if !ok {
		return
	}

	var result model.Result
	if virtual == "fopt" {
		result = s.dispatcher.UpdateViaGroup(c.Request.Context(), ri, patch, req.From)
	} else {
		result = s.dispatcher.Update(c.Request.Context(), ri, patch, req.From)
	}
	s.writeResult(c, result)
}

func (s *Server) handleDelete(c *gin.Context) {
	req, ok := s.dissect(c, model.OpDelete, model.TypeUnknown, nil)
	if !ok {
		return
	}
	ri, virtual, ok := s.resolveAddress(c, req.To)
	if !ok {
		return
	}
	var result model.Result
	if virtual == "fopt" {
		result = s.dispatcher.DeleteViaGroup(c.Request.Context(), ri, req.From)
	} else {
		result = s.dispatcher.Delete(c.Request.Context(), ri, req.From)
	}
	s.writeResult(c, result)
}

// unwrapEnvelope pulls the single "m2m:<type>" outer key a CREATE/UPDATE
// body must carry, per spec.md §6, decoding its value into a plain map.
func unwrapEnvelope(envelope map[string]json.RawMessage) (string, map[string]any, *model.CSEError) {
	if len(envelope) != 1 {
		return "", nil, model.NewError(model.RSCBadRequest, "request body must have exactly one outer resource key")
	}
	for k, raw := range envelope {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return "", nil, model.NewError(model.RSCBadRequest, "malformed %q body: %s", k, err)
		}
		return k, body, nil
	}
	return "", nil, nil
}

// tyFromContentType extracts the `ty` parameter oneM2M's HTTP binding
// attaches to the Content-Type header on CREATE, e.g.
// "application/json;ty=2". Returns TypeUnknown if absent, letting the
// Factory fall back to resolving the type from the outer body key.
func tyFromContentType(ct string) model.ResourceType {
	const marker = "ty="
	idx := strings.Index(ct, marker)
	if idx < 0 {
		return model.TypeUnknown
	}
	rest := ct[idx+len(marker):]
	if semi := strings.IndexAny(rest, "; "); semi >= 0 {
		rest = rest[:semi]
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return model.TypeUnknown
	}
	return model.ResourceType(n)
}

// writeResult renders a Dispatcher Result as the oneM2M HTTP response:
// status mapped via ResponseStatusCode.HTTPStatus(), X-M2M-RSC echoing
// the protocol outcome, and the resource (if any) wrapped in its
// "m2m:<type>" envelope.
func (s *Server) writeResult(c *gin.Context, result model.Result) {
	c.Header(headerRSC, strconv.Itoa(int(result.RSC)))
	if ri := c.GetHeader(headerRI); ri != "" {
		c.Header(headerRI, ri)
	}
	if rvi := c.GetHeader(headerRVI); rvi != "" {
		c.Header(headerRVI, rvi)
	}
	if vsi := c.GetHeader(headerVSI); vsi != "" {
		c.Header(headerVSI, vsi)
	}

	status := result.RSC.HTTPStatus()

	if !result.Succeeded() {
		c.JSON(status, gin.H{"m2m:dbg": result.Dbg})
		return
	}

	if result.Resource != nil {
		c.JSON(status, serializeResource(result.Resource))
		return
	}
	if result.Content != nil {
		c.JSON(status, result.Content)
		return
	}
	c.Status(status)
}
