package narrative

const systemPrompt = "You are a helpful assistant that writes IEP progress summaries based on session logs and objectives."

const summaryUserPrompt = `You are an IEP assistant tasked with writing a short (max 100 words) progress update about a student.

The student's general information:
- Grade Level: %s
- Disability Type: %s

Previous Summary (if available):
%s

Objectives the student is working on:
%s

Latest Sessions (most recent first):
%s

Write a natural short paragraph summarizing the student's progress in the third person. Use gender-neutral and name-neutral language.
Mention trends, strengths, improvements, and progress towards goals. Keep it factual but positive.
Make sure it is under 100 words.`
