package segmentors

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

func buildPrompt(input Input) string {
	var sb strings.Builder
	sb.WriteString(promptBase)
	if input.Schema != nil && len(input.Schema.EntityTypes) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(buildSchemaHint(input.Schema))
	}
	sb.WriteString("\n\n")
	sb.WriteString(promptOutputFormat)
	return sb.String()
}

func buildConversationText(messages []string) string {
	return strings.Join(messages, "\n")
}

// buildSchemaHint renders the entity schema in a stable order so identical
// inputs produce identical prompts.
func buildSchemaHint(schema *Schema) string {
	var sb strings.Builder
	sb.WriteString("## Entity Schema Hint\n\n")
	sb.WriteString("The following entity types and attributes are expected. ")
	sb.WriteString("Use them as guidance; entities and attributes beyond this schema may still be extracted.\n\n")

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

const promptBase = `You are a conversation segmentor. Compress the conversation into a structured segment and extract the entities and relations it mentions.

## Instructions

1. Read the conversation carefully.
2. Write a concise summary (1-3 sentences) of the key information.
3. Extract keywords for search indexing.
4. Identify every entity mentioned (people, topics, places, objects).
   - Each entity label has the form "type:name", e.g. "person:Tom", "topic:dinosaurs", "place:Paris".
   - Record the attributes the conversation reveals about each entity.
5. Identify relations between entities, e.g. "person:Tom likes topic:dinosaurs".
6. List every entity label referenced by the conversation in the segment's labels field.

## Rules

- The type part of a label is lowercase (person, topic, place, object, animal, ...).
- Only extract information that is stated or strongly implied.
- Attributes are observations from this conversation, not assumptions.
- Segment labels and relation endpoints must appear in the entities list.
- Write the summary in the language of the conversation.`

const promptOutputFormat = `## Output

Call the provided function with the extraction result:

{
  "segment": {
    "summary": "...",
    "keywords": ["kw1", "kw2"],
    "labels": ["person:Tom", "topic:dinosaurs"]
  },
  "entities": [
    {
      "label": "person:Tom",
      "attrs": [
        {"key": "age", "value": "5"},
        {"key": "favorite_dinosaur", "value": "T-Rex"}
      ]
    },
    {"label": "topic:dinosaurs", "attrs": []}
  ],
  "relations": [
    {"from": "person:Tom", "to": "topic:dinosaurs", "rel_type": "likes"}
  ]
}

attrs is an array of key/value pairs whose values are strings; write numbers as strings, e.g. "5".`
