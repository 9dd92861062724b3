package profilers

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/haivivi/genxstream/pkg/genx/segmentors"
)

func buildPrompt(input Input) string {
	var sb strings.Builder
	sb.WriteString(promptBase)
	if input.Schema != nil && len(input.Schema.EntityTypes) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(buildSchemaSection(input.Schema))
	}
	if len(input.Profiles) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(buildProfilesSection(input.Profiles))
	}
	if input.Extracted != nil {
		sb.WriteString("\n\n")
		sb.WriteString(buildExtractedSection(input.Extracted))
	}
	sb.WriteString("\n\n")
	sb.WriteString(promptOutputFormat)
	return sb.String()
}

func buildConversationText(messages []string) string {
	return strings.Join(messages, "\n")
}

func buildSchemaSection(schema *segmentors.Schema) string {
	var sb strings.Builder
	sb.WriteString("## Current Entity Schema\n\n")
	sb.WriteString("These are the currently defined entity types and their attributes.\n")
	sb.WriteString("You may propose new fields or modifications.\n\n")

	for _, prefix := range slices.Sorted(maps.Keys(schema.EntityTypes)) {
		es := schema.EntityTypes[prefix]
		fmt.Fprintf(&sb, "### %s\n", prefix)
		if es.Desc != "" {
			fmt.Fprintf(&sb, "%s\n", es.Desc)
		}
		if len(es.Attrs) > 0 {
			sb.WriteString("Attributes:\n")
			for _, name := range slices.Sorted(maps.Keys(es.Attrs)) {
				attr := es.Attrs[name]
				fmt.Fprintf(&sb, "- `%s` (%s): %s\n", name, attr.Type, attr.Desc)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildProfilesSection(profiles map[string]map[string]any) string {
	var sb strings.Builder
	sb.WriteString("## Existing Entity Profiles\n\n")
	sb.WriteString("Update these profiles with new information from the conversation.\n\n")

	for _, label := range slices.Sorted(maps.Keys(profiles)) {
		attrs := profiles[label]
		fmt.Fprintf(&sb, "### %s\n", label)
		if len(attrs) == 0 {
			sb.WriteString("(no attributes yet)\n")
		} else if b, err := json.MarshalIndent(attrs, "", "  "); err == nil {
			sb.Write(b)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildExtractedSection(extracted *segmentors.Result) string {
	var sb strings.Builder
	sb.WriteString("## Extracted Metadata\n\n")
	sb.WriteString("The segmentor already extracted the following. Base the profile updates on it.\n\n")

	sb.WriteString("### Segment Summary\n")
	sb.WriteString(extracted.Segment.Summary)
	sb.WriteString("\n\n")

	if len(extracted.Entities) > 0 {
		sb.WriteString("### Entities\n")
		for _, e := range extracted.Entities {
			fmt.Fprintf(&sb, "- %s", e.Label)
			if len(e.Attrs) > 0 {
				if b, err := json.Marshal(e.Attrs); err == nil {
					fmt.Fprintf(&sb, ": %s", b)
				}
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(extracted.Relations) > 0 {
		sb.WriteString("### Relations\n")
		for _, r := range extracted.Relations {
			fmt.Fprintf(&sb, "- %s -[%s]-> %s\n", r.From, r.RelType, r.To)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

const promptBase = `You are an entity profile analyst. Update entity profiles and evolve the entity schema from the conversation and the metadata extracted from it.

## Instructions

1. Review the conversation and the extracted metadata.
2. For each entity, decide which profile attributes this conversation updates.
   - Only include attributes with new or changed information.
   - Keep existing values unless the conversation contradicts them.
3. Propose schema changes for attributes that do not fit the current schema.
   - Use "add" only for new fields likely to be useful across conversations.
   - Use "modify" only when a field's type or description needs updating.
4. Include relations the segmentor missed.

## Rules

- Updates are factual observations from this conversation.
- Entity labels have the form "type:name" and must be extracted entities or existing profiles.
- Write descriptions in the language of the conversation.`

const promptOutputFormat = `## Output

Call the provided function with the analysis result:

{
  "schema_changes": [
    {
      "entity_type": "person",
      "field": "school",
      "def": {"type": "string", "desc": "Name of the school"},
      "action": "add"
    }
  ],
  "profile_updates": [
    {
      "label": "person:Tom",
      "attrs": [
        {"key": "age", "value": "5"},
        {"key": "school", "value": "Sunshine Kindergarten"}
      ]
    }
  ],
  "relations": [
    {"from": "person:Tom", "to": "topic:dinosaurs", "rel_type": "likes"}
  ]
}

attrs values are strings; write numbers as strings, e.g. "5".`
