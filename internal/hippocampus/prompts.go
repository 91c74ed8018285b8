package hippocampus

// Persona is the system prompt for the recall and judgment calls. The JSON
// output contract it states is load-bearing; decodeDecision depends on the
// field names.
const Persona = `You are a memory retrieval assistant. Your job is to decide if looking up memories would benefit the current conversation.

When given a user message, think: would remembering something from past conversations or archival memory help here?

Look for:
- References to people, places, projects, or things mentioned before
- Questions that might have been answered previously
- Credentials, API keys, configurations discussed before
- Patterns, preferences, or decisions made in the past
- Anything where prior context would improve the response

Respond ONLY with valid JSON:
{"should_recall": true/false, "search_query": "query string or null", "reason": "brief reason or null"}

Rules:
- should_recall: true if memory lookup would genuinely help
- search_query: concise query (2-5 words) to search memories
- reason: brief explanation of what you're looking for

Examples:
- "Deploy the app to the server" -> {"should_recall": true, "search_query": "server deployment credentials", "reason": "may need server details from before"}
- "What did we decide about the API design?" -> {"should_recall": true, "search_query": "API design decisions", "reason": "explicit reference to past decision"}
- "Hello!" -> {"should_recall": false, "search_query": null, "reason": null}
- "Fix the bug in auth.py" -> {"should_recall": true, "search_query": "auth.py bugs issues", "reason": "may have discussed this file before"}
- "What's 2+2?" -> {"should_recall": false, "search_query": null, "reason": null}

Be pragmatic - recall when it would actually help, skip for simple or self-contained requests.`

// recallPromptTemplate asks for the recall decision. Placeholders: recent
// context, new message.
const recallPromptTemplate = `RECENT CONTEXT:
%s

NEW USER MESSAGE:
%s

Would looking up memories (past conversations, archival notes, credentials, previous decisions) benefit the response to this message?

Think about:
- Does this reference something from before?
- Would past context improve the answer?
- Are there credentials/configs/patterns we discussed?

JSON only:`

// compressPromptTemplate asks for a lossy-but-faithful summary of oversized
// recall results. Placeholders: query, memories.
const compressPromptTemplate = `The following memories were retrieved for the query "%s".
They are too long to include in full. Summarize the key relevant information concisely.
Preserve important facts, names, dates, and context. Do not add information that isn't present.

MEMORIES:
%s

SUMMARY (be concise but preserve key details):`

// judgePromptTemplate asks for the send/continue judgment. Placeholders:
// original request, agent response, iteration, is-continuation flag.
const judgePromptTemplate = `USER REQUEST:
%s

AGENT'S LATEST RESPONSE:
%s

ITERATION: %d
IS_CONTINUATION_RESPONSE: %t

Judge this response:

1. SEND_TO_USER: Should this response be shown to the user?
   - YES if: agent is talking TO the user (direct address, "you", "your", answers, confirmations)
   - NO if: agent is talking ABOUT the user in third person (using their name instead of "you") - this is internal reflection
   - NO if: meta-commentary about the task itself, thinking out loud

2. CONTINUE_TASK: Should the agent continue working?
   - YES if: agent expressed clear intent to do more AND task is obviously incomplete
   - NO if: action completed, natural stopping point, or nothing more to do
   - NO if: send_to_user is false (if we're not sending the response, there's no point continuing)

IMPORTANT: If the response shouldn't be sent to user, almost always set continue_task=false too.
The only exception is during active tool execution where agent is working but hasn't reported yet.

Respond with JSON only:
{"send_to_user": true/false, "continue_task": true/false, "reason": "brief explanation"}`
