package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/atessari/diaforge/pkg/schema"
)

// handleGenerate runs the full pipeline for a record collection.
func (s *DiaforgeServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordsJSON, err := req.RequireString("records_json")
	if err != nil {
		return mcp.NewToolResultError("records_json is required"), nil
	}
	doEnrich := req.GetBool("enrich", false)

	raw, parseErr := decodeRecordsArg(recordsJSON)
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}

	var records []schema.Record
	if doEnrich {
		records, err = s.enricher.Enrich(ctx, uuid.NewString(), raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("enrichment failed: %v", err)), nil
		}
	} else {
		for _, item := range raw {
			records = append(records, schema.NormalizeRecord(item))
		}
	}

	result, runErr := s.service.Generate(ctx, records)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", runErr)), nil
	}

	return marshalResult(result)
}

// handleRefine reruns the pipeline for an existing session.
func (s *DiaforgeServer) handleRefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	instruction, err := req.RequireString("instruction")
	if err != nil {
		return mcp.NewToolResultError("instruction is required"), nil
	}

	result, runErr := s.service.Refine(ctx, sessionID, instruction)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refine failed: %v", runErr)), nil
	}

	return marshalResult(result)
}

// handleEnrich returns the enriched record collection.
func (s *DiaforgeServer) handleEnrich(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordsJSON, err := req.RequireString("records_json")
	if err != nil {
		return mcp.NewToolResultError("records_json is required"), nil
	}

	raw, parseErr := decodeRecordsArg(recordsJSON)
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}

	records, enrichErr := s.enricher.Enrich(ctx, uuid.NewString(), raw)
	if enrichErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("enrichment failed: %v", enrichErr)), nil
	}

	return marshalResult(map[string]any{"records": records})
}

// handleStatus returns a session row with its event log.
func (s *DiaforgeServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	session, events, statusErr := s.service.Session(ctx, sessionID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}

	return marshalResult(map[string]any{
		"session": session,
		"events":  events,
	})
}

// decodeRecordsArg parses the records_json tool argument.
func decodeRecordsArg(recordsJSON string) ([]map[string]any, error) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(recordsJSON), &raw); err != nil {
		return nil, fmt.Errorf("records_json must be a JSON array of objects: %v", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("records_json must not be empty")
	}
	return raw, nil
}

// marshalResult serializes a value as a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
