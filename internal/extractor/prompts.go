package extractor

const systemPrompt = `You extract structured IEP session logs from educator transcripts.`

const extractionUserPrompt = `You are an assistant that extracts structured session logs from a transcript for IEP progress tracking.

Split the transcript into individual sessions, not by student but by distinct activities or observations.
Each session represents one event or evaluation for a single student.
The same student or the same objective may appear more than once; create a separate log for every activity or observation, even when it is for the same student.

For each session, extract:
- student_name: the name of the student the session is about
- objective_description: what the student was working on, in third person
- memo: the student's performance or outcome for this specific session, in third person

Do NOT combine different activities into one JSON object, even when the same student or objective is involved.
Describe exactly one observation per object.
%s
If there is no meaningful session data in the transcript, return an empty list: []

Respond ONLY with a valid JSON array, like this:
[
  {
    "student_name": "Johnny",
    "objective_description": "Johnny is working on solving word problems.",
    "memo": "Johnny solved 10 out of 15 problems correctly."
  }
]

Transcript:
"""
%s
"""`

const knownStudentsHint = `
Known students (reuse these exact spellings when the transcript refers to one of them; do not invent variants):
%s
`
