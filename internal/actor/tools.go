package actor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roasbeef/lethe/internal/llm"
)

// defaultWaitToolTimeout is the wait_for_response timeout when the model
// omits one.
const defaultWaitToolTimeout = 60

// SpawnFunc spawns a child actor on behalf of a parent and starts driving
// it. Supplied by the Runner so tool bindings stay free of loop mechanics.
type SpawnFunc func(cfg Config, parent *Actor) (*Actor, error)

// BindTools returns the messaging tools closed over (actor, registry):
// send_message, wait_for_response, discover_actors, terminate, and, for
// principals or actors granted the "spawn" token, spawn_subagent. Every
// failure is returned to the model as an error string, never as an error.
func BindTools(a *Actor, reg *Registry, spawn SpawnFunc) []llm.Tool {
	tools := []llm.Tool{
		sendMessageTool(a, reg),
		waitForResponseTool(a, reg),
		discoverActorsTool(a, reg),
		terminateTool(a),
	}

	if a.IsPrincipal || a.Config.permitsSpawn() {
		tools = append(tools, spawnSubagentTool(a, spawn))
	}

	return tools
}

func sendMessageTool(a *Actor, reg *Registry) llm.Tool {
	return llm.Tool{
		Name: "send_message",
		Description: "Send a message to another actor by id. Use " +
			"discover_actors() first if you do not know the id.",
		InputSchema: llm.ObjectSchema(map[string]any{
			"actor_id": map[string]any{
				"type":        "string",
				"description": "Recipient actor id.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Message body.",
			},
			"reply_to": map[string]any{
				"type": "string",
				"description": "Optional id of the message " +
					"this answers.",
			},
		}, "actor_id", "content"),
		Run: func(_ context.Context,
			args map[string]any) (string, error) {

			id, err := llm.StringArg(args, "actor_id")
			if err != nil {
				return "", err
			}
			content, err := llm.StringArg(args, "content")
			if err != nil {
				return "", err
			}
			replyTo, err := llm.OptionalStringArg(
				args, "reply_to", "",
			)
			if err != nil {
				return "", err
			}

			recipient, ok := reg.Get(id)
			if !ok {
				return fmt.Sprintf("Error: actor %s not "+
					"found. Use discover_actors() to "+
					"find available actors.", id), nil
			}
			msg, err := a.SendTo(id, content, replyTo)
			switch {
			case errors.Is(err, ErrActorTerminated):
				return fmt.Sprintf("Error: actor %s (%s) is "+
					"terminated.", id,
					recipient.Config.Name), nil

			case err != nil:
				return fmt.Sprintf("Error: %v", err), nil
			}

			return fmt.Sprintf("Message sent (id=%s) to %s (%s)",
				msg.ID, recipient.Config.Name,
				recipient.ID), nil
		},
	}
}

func waitForResponseTool(a *Actor, reg *Registry) llm.Tool {
	return llm.Tool{
		Name: "wait_for_response",
		Description: "Block until another actor sends you a message " +
			"or the timeout elapses.",
		InputSchema: llm.ObjectSchema(map[string]any{
			"timeout_seconds": map[string]any{
				"type": "number",
				"description": "How long to wait. Defaults " +
					"to 60.",
			},
		}),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			secs, err := llm.OptionalNumberArg(
				args, "timeout_seconds",
				defaultWaitToolTimeout,
			)
			if err != nil {
				return "", err
			}

			reply := a.WaitForReply(
				ctx, time.Duration(secs*float64(time.Second)),
			)

			if reply.IsNone() {
				return "Timed out waiting for response.", nil
			}
			msg := reply.UnwrapOr(Message{})

			return fmt.Sprintf("[From %s] %s",
				reg.displayName(msg.Sender),
				msg.Content), nil
		},
	}
}

func discoverActorsTool(a *Actor, reg *Registry) llm.Tool {
	return llm.Tool{
		Name: "discover_actors",
		Description: "List the active actors in a group. Omit the " +
			"group to list your own.",
		InputSchema: llm.ObjectSchema(map[string]any{
			"group": map[string]any{
				"type": "string",
				"description": "Group to list. Defaults to " +
					"your own group.",
			},
		}),
		Run: func(_ context.Context,
			args map[string]any) (string, error) {

			group, err := llm.OptionalStringArg(args, "group", "")
			if err != nil {
				return "", err
			}
			if group == "" {
				group = a.Config.Group
			}

			infos := reg.Discover(group)
			if len(infos) == 0 {
				return fmt.Sprintf("No active actors in "+
					"group '%s'.", group), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Actors in group '%s':\n", group)
			for _, info := range infos {
				marker := ""
				if info.ID == a.ID {
					marker = " (you)"
				}
				fmt.Fprintf(&b,
					"  %s (id=%s, state=%s)%s: %s\n",
					info.Name, info.ID, info.State,
					marker, info.Goals)
			}

			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func terminateTool(a *Actor) llm.Tool {
	return llm.Tool{
		Name: "terminate",
		Description: "Finish your task. Pass a summary of what you " +
			"accomplished as the result.",
		InputSchema: llm.ObjectSchema(map[string]any{
			"result": map[string]any{
				"type":        "string",
				"description": "Summary of the outcome.",
			},
		}),
		Run: func(_ context.Context,
			args map[string]any) (string, error) {

			result, err := llm.OptionalStringArg(
				args, "result", "",
			)
			if err != nil {
				return "", err
			}

			a.Terminate(result)

			return "Terminated. Result sent to parent.", nil
		},
	}
}

func spawnSubagentTool(a *Actor, spawn SpawnFunc) llm.Tool {
	return llm.Tool{
		Name: "spawn_subagent",
		Description: "Spawn a subagent to work on a task. It runs " +
			"concurrently and will send you a message when done.",
		InputSchema: llm.ObjectSchema(map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Short name for the subagent.",
			},
			"goals": map[string]any{
				"type":        "string",
				"description": "What the subagent must do.",
			},
			"group": map[string]any{
				"type": "string",
				"description": "Discovery group. Defaults " +
					"to your own.",
			},
			"tools": map[string]any{
				"type": "string",
				"description": "Comma-separated external " +
					"tool names to grant.",
			},
			"model": map[string]any{
				"type":        "string",
				"description": "Optional model override.",
			},
			"max_turns": map[string]any{
				"type":        "number",
				"description": "Turn budget.",
			},
		}, "name", "goals"),
		Run: func(_ context.Context,
			args map[string]any) (string, error) {

			name, err := llm.StringArg(args, "name")
			if err != nil {
				return "", err
			}
			goals, err := llm.StringArg(args, "goals")
			if err != nil {
				return "", err
			}
			group, err := llm.OptionalStringArg(
				args, "group", a.Config.Group,
			)
			if err != nil {
				return "", err
			}
			toolList, err := llm.OptionalStringArg(
				args, "tools", "",
			)
			if err != nil {
				return "", err
			}
			model, err := llm.OptionalStringArg(args, "model", "")
			if err != nil {
				return "", err
			}
			maxTurns, err := llm.OptionalNumberArg(
				args, "max_turns", 0,
			)
			if err != nil {
				return "", err
			}

			cfg := Config{
				Name:     name,
				Group:    group,
				Goals:    goals,
				Model:    model,
				Tools:    splitToolList(toolList),
				MaxTurns: int(maxTurns),
			}

			child, err := spawn(cfg, a)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}

			return fmt.Sprintf("Spawned actor '%s' (id=%s, "+
				"group=%s).\nGoals: %s\nIt will send you a "+
				"message when done.", child.Config.Name,
				child.ID, child.Config.Group,
				child.Config.Goals), nil
		},
	}
}

// splitToolList parses a comma-separated tool list, dropping empties.
func splitToolList(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}

	return names
}
