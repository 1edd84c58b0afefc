// Package models contains the data structures shared between the
// conversation engine, the language model vendor and the tool server
// lifecycle manager.
//
// The main entry points are:
//
//   - Message: a single conversation entry, either plain text or a
//     sequence of ContentBlocks.
//   - ContentBlock: text, tool_use or tool_result, serialized in the
//     shape the Anthropic Messages API expects.
//   - ToolDescriptor: name, description and input schema of a tool
//     exposed by a tool server.
//   - ToolInvocation and ToolResult: one model requested call and its
//     outcome, paired by correlation id.
//   - CompletionRequest and Completion: one round trip to the model.
package models
