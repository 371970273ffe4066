package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/errors"
)

// processMessages runs the envelope protocol: one JSON request per line in,
// one JSON response per line out. Requests are handled strictly in order.
// It returns nil on EOF and ctx.Err() once ctx is cancelled.
func (s *Server) processMessages(ctx context.Context, reader io.Reader, writer io.Writer) error {
	in := bufio.NewReader(reader)
	out := bufio.NewWriter(writer)
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := in.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			response := s.handleLine(ctx, line)
			if err := encoder.Encode(response); err != nil {
				return errors.NewTransportError("write response", err)
			}
			if err := out.Flush(); err != nil {
				return errors.NewTransportError("write response", err)
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.NewTransportError("read request", readErr)
		}
	}
}

// handleLine decodes and executes a single request. Every outcome, malformed
// input included, produces a response value.
func (s *Server) handleLine(ctx context.Context, line []byte) any {
	var req models.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return s.transportFailure(errors.NewTransportError("invalid request", err))
	}

	set := 0
	for _, present := range []bool{req.Tool != nil, req.Resource != nil, req.List != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return s.transportFailure(errors.NewTransportError(
			"invalid request: expected exactly one of tool, resource or list", nil))
	}

	switch {
	case req.Tool != nil:
		return s.dispatcher.Dispatch(ctx, *req.Tool, req.Arguments).Envelope()

	case req.Resource != nil:
		content, err := s.resources.Read(ctx, *req.Resource)
		if err != nil {
			return models.NewErrorEnvelope(errors.Message(err))
		}
		return models.NewContentEnvelope(content)

	default:
		switch *req.List {
		case models.ListTools:
			return models.NewSuccessEnvelope(s.dispatcher.Registry().List())
		case models.ListResources:
			return models.NewSuccessEnvelope(s.resources.List())
		default:
			return s.transportFailure(errors.NewTransportError(
				fmt.Sprintf("invalid request: unknown list target %q", *req.List), nil))
		}
	}
}

func (s *Server) transportFailure(se *errors.StructuredError) models.ErrorEnvelope {
	s.logger.WithError(se).Warn("Rejected request")
	return se.ToEnvelope()
}
