package iep

const systemPrompt = `You are parsing an IEP. Return valid JSON with these fields:
1) student_name (string)
2) disability_type (string)
3) grade_level (string)
4) areas_of_need (array). Each area_of_need:
    - area_name (string, e.g. 'Math', 'Reading')
    - goals (array). Each goal:
        * goal_description (string)
        * objectives (array). Each objective:
            + description (string, verbatim)

Rules:
- If you can't find a value, use 'Unknown' or empty lists.
- Do not omit any required fields.
- Return ONLY valid JSON. No markdown or extra text.
- Capture area of need, goals, and objectives exactly as they appear.`

const userPrompt = "IEP Text:\n%s"
