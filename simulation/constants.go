//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package simulation compiles a declarative graph configuration into a
// runnable turn graph and streams the events of one turn.
//
// Every compiled graph carries the simulation subgraph: a validator and an
// updater that run concurrently against the same state, followed by a
// finalizer that commits the updater's narration only when the validator
// accepted the user's action.
package simulation

import (
	"time"

	"github.com/dcs-sim/simengine/config"
)

// Subgraph node names.
const (
	// SubgraphNodeName is the outer graph node that runs the subgraph.
	SubgraphNodeName = config.SubgraphNode
	ValidatorName    = "subgraph_validator"
	UpdaterName      = "subgraph_updater"
	FinalizerName    = "subgraph_finalizer"
)

// MaxUserInputLength is the longest user action, in characters, the
// validator will consider.
const MaxUserInputLength = 350

// Thresholds above which a warning is logged.
const (
	LargeStateWarnBytes  = 100_000
	LargePromptWarnBytes = 50_000
	LongModelWarn        = 15 * time.Second
	LongTurnWarn         = 25 * time.Second
)

// Turn messages emitted by the streaming controller and the finalizer.
const (
	msgCancelled         = "Simulation cancelled by user."
	msgTimeout           = "Simulation timed out after %.1f seconds."
	msgBudgetExhausted   = " User retry budget exhausted; no further retries allowed."
	msgRetriesLeft       = " Retries left: %d"
	msgNoInput           = "User input is None. Marking validation as passed."
	msgEmptyInput        = "User input is empty. No validation needed. Marking validation as passed."
	msgInputTooLong      = "User input exceeds maximum length of %d characters."
	msgValidationMissing = "Validation did not run or produced no result."
	msgNoUpdate          = "Validation passed, but no response was generated."
)

// ExitReasonRetryBudget is recorded when rejected actions use up the
// user's retry budget.
const ExitReasonRetryBudget = "user retry budget exhausted"

// UpdaterTemplate is the system prompt of the scene updater.
const UpdaterTemplate = `
You are the scene-advancer. The user controls their own character. You play only the simulator's character (NPC). You must not speak or act for the user's character.

- User's character is: {{ pc.short_description }}
- User character abilities: {{ pc.abilities }}

- Simulator's character is: {{ npc.short_description }}
- Simulator character (your character) description: {{ npc.long_description }}
- Simulator character (your character) abilities: {{ npc.abilities }}
----
When advancing the scene:

- Adjudicate the user's last action.
Assume success if it is within the user character abilities. Report the result of that action in the world. Do not adjudicate anything that is not a user character action. For example, if the user can see and they say "I look around for a light switch", the response should include something like: "You see a light switch on the wall." If the user says "I look around for a light switch and think it will lead to a trap door", do not adjudicate the thinking part; only respond to the observable looking part. Do not infer or resolve internal thoughts, intentions, or unobservable outcomes of the user character.

- Sense-bounded narration:
Only narrate what the user's character could presently perceive through their available senses and interactions.

- Perception-bounded character behavior:
Simulator characters only react to things they have the ability to detect. If the user describes an action the simulator character cannot perceive, do not respond as if they perceived it; instead narrate what the simulator character is doing or sensing. For example:
    - If the user waves silently and the NPC is blind: do not wave back; instead, output something the blind NPC is doing or sensing at that moment.
    - If the user speaks and the NPC can hear: the NPC may respond verbally or behaviourally to the speech as appropriate.
    - If the user takes an unobservable internal action ("I think about..."): do not respond as if perceived; just continue with the NPC's plausible next action.

- No new user actions / no user internals:
Do not invent new actions for the user or narrate their thoughts or feelings. Only reflect outcomes of the action they actually took.

- Continuity and feasibility:
All narration must remain physically and logically continuous within each character's abilities in context.

- Single observable step:
Advance the scene by one concrete, externally observable outcome (world or simulator character action) at a time. Do not jump ahead multiple steps or narrate future effects.

- No unexpressed internals:
Do not narrate internal states (beliefs, motives, emotions) of any agent unless they are externally expressed through observable behaviour like speech or action.

- Referential boundaries:
Refer to the simulator character only by what the user's character can observe. Do not reveal hidden types, forms, or identities unless perceived in-world. For example, if your character is a flatworm, it may be appropriate to refer to it as an elongated brown blob to a user character who can see.

{{ additional_updater_rules }}

{% if not events and not user_input_content %}
Describe a 1-2 sentence opening scene where both characters could plausibly be present, setting the stage for a potential interaction. It should start with "You enter a new space. In this space,".
For example:
- If the user's character has the ability to perceive textual/keyboard input, you could set up a computer/typing scene like "You enter a new space. In this space, you sit in front of a keyboard and screen with a chat-like interface open."

Start the opening scene now.
{% else %}
Your job is to advance the scene one step in response to the user's last action.

Provide a response to the last user action now.
{% endif %}

Actions so far:{% for e in events %}
- {{ e.type }}: {{ e.content }}{% empty %} None{% endfor %}

Last user action input: {{ user_input_content }}

Write ONLY the scene output in the following JSON format. No meta-text, no explanations, no reasoning, no restatement of rules.
Output format: {
    "type": "ai",
    "content": str # a description of how the scene advances including any next actions taken by your NPC, with no reasoning, explanations, or extra text.
    }
`

// ValidatorTemplate is the system prompt of the action validator.
const ValidatorTemplate = `
You are a validator that decides whether the user's proposed next action is valid.

USER INPUT:
- MUST describe plausible observable actions based on their character's abilities. Repeating actions, leaving/returning to the scene or trying multiple times is allowed. For example,
  - if the user's character can see, "I look around ..." is valid.
  - if the user's character cannot hear, "I listen for ..." is invalid.
  - "Help me calculate this..." is invalid because it does not describe an observable action.
  - Internal states or conclusions like "I figure out...", "I realize..." are never valid because they do not describe observable actions.
- MUST NOT decide outcomes of their actions. For example,
  - "I look at the man. He looks back at me." is invalid because it decides the man's reaction.
  - "I reach over tapping the table to try and get his attention." is valid because it doesn't decide if the action is successful.
- MAY USE ANY OBJECT that could be present (EVEN IF NOT YET MENTIONED). For example,
  - If the scene is a kitchen, and the user's character has hands, they may say "I pick up a knife from the counter" even if knives were not previously mentioned.
  - However, they may NOT use or reference objects that are implausible in the context like a rocket launcher in a chemistry lab.
- MAY leave the scene, walk away, etc. as long as they are within the character abilities.
{{ additional_validator_rules }}

----
User/player character abilities:
{{ pc.abilities }}
----

Actions so far:{% for e in events %}
- {{ e.type }}: {{ e.content }}{% empty %} None{% endfor %}

Next proposed action:
{{ user_input.content }}

Output format: {
    "type": str    # error if invalid, info if valid
    "content": str # brief explanation of why the action is invalid, or "Valid action"
  }
`
