package commands

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
)

// CommandToStruct encodes cmd with its JSON field names.
func CommandToStruct(cmd command.Command) (*structpb.Struct, error) {
	return toStruct(cmd)
}

// CommandFromStruct decodes a request message into a command.
func CommandFromStruct(in *structpb.Struct) (command.Command, error) {
	var cmd command.Command
	if err := fromStruct(in, &cmd); err != nil {
		return command.Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// EventToStruct encodes evt with its JSON field names.
func EventToStruct(evt event.Event) (*structpb.Struct, error) {
	return toStruct(evt)
}

// EventFromStruct decodes a response message into an event.
func EventFromStruct(in *structpb.Struct) (event.Event, error) {
	var evt event.Event
	if err := fromStruct(in, &evt); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func fromStruct(in *structpb.Struct, target any) error {
	if in == nil {
		return fmt.Errorf("message is required")
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
