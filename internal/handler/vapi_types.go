package handler

import (
	"encoding/json"
)

// Event type tags the voice platform sends on /webhook.
const (
	eventStatusUpdate        = "status-update"
	eventTranscript          = "transcript"
	eventAssistantRequest    = "assistant-request"
	eventEndOfCallReport     = "end-of-call-report"
	eventConversationUpdate  = "conversation-update"
	eventFunctionCall        = "function-call"
	eventToolCalls           = "tool-calls"
	eventConversationStarted = "conversation-started"
)

// Tool function names the assistant may invoke.
const (
	functionHomeAuth      = "home_auth"
	functionDeviceControl = "control_air_circulator"
)

// WebhookRequest is the voice platform's event envelope.
type WebhookRequest struct {
	Message WebhookMessage `json:"message"`
	Call    *CallInfo      `json:"call,omitempty"`
}

type CallInfo struct {
	ID          string `json:"id,omitempty"`
	AssistantID string `json:"assistantId,omitempty"`
}

type WebhookMessage struct {
	Type           string            `json:"type"`
	Role           string            `json:"role,omitempty"`
	Status         string            `json:"status,omitempty"`
	Transcript     string            `json:"transcript,omitempty"`
	TranscriptType string            `json:"transcriptType,omitempty"`
	EndedReason    string            `json:"endedReason,omitempty"`
	Conversation   []json.RawMessage `json:"conversation,omitempty"`
	FunctionCall   *FunctionCall     `json:"functionCall,omitempty"`
	ToolCalls      []ToolCall        `json:"toolCalls,omitempty"`
}

type ToolCall struct {
	Function *FunctionCall `json:"function,omitempty"`
}

type FunctionCall struct {
	Name       string          `json:"name,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

// Function returns the invoked function in either wire spelling: the
// singular functionCall field or the first entry of the toolCalls array.
func (m *WebhookMessage) Function() *FunctionCall {
	if m.FunctionCall != nil {
		return m.FunctionCall
	}
	if len(m.ToolCalls) > 0 && m.ToolCalls[0].Function != nil {
		return m.ToolCalls[0].Function
	}
	return nil
}

// ControlArguments are the decoded inputs of a device control invocation.
type ControlArguments struct {
	Device string `json:"device"`
	Action string `json:"action"`
}

// DecodeArguments reads the function's inputs, preferring parameters over
// arguments. Either field may hold a JSON object directly or a JSON string
// that itself contains the encoded object.
func (f *FunctionCall) DecodeArguments() (ControlArguments, error) {
	raw := f.Parameters
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		if len(f.Arguments) > 0 && string(f.Arguments) != "null" {
			raw = f.Arguments
		}
	}

	var args ControlArguments
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return args, err
		}
		raw = json.RawMessage(encoded)
	}

	err := json.Unmarshal(raw, &args)
	return args, err
}

// Response shapes.

type functionResult struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Result string `json:"result,omitempty"`

	// assistant-message entries carry message instead of name/result.
	Message string `json:"message,omitempty"`
}

type resultsResponse struct {
	Results []functionResult `json:"results"`
}

func toolResultResponse(name, result string) resultsResponse {
	return resultsResponse{
		Results: []functionResult{{Type: "function-result", Name: name, Result: result}},
	}
}

func assistantMessageResponse(message string) resultsResponse {
	return resultsResponse{
		Results: []functionResult{{Type: "assistant-message", Message: message}},
	}
}

type firstMessageResponse struct {
	FirstMessage string `json:"firstMessage"`
}

type ackResponse struct {
	Message string `json:"message"`
}

type assistantResponse struct {
	Assistant assistantDescriptor `json:"assistant"`
}

type assistantDescriptor struct {
	AssistantID string `json:"assistantId"`
}
