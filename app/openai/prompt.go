package openai

// Prompts sent to the model. Kept centralized so they are easy to tweak
// without hunting through call sites; overridable via the prompts file.

// DefaultClassifyPrompt asks the vision model to name the food in a photo.
// The NO_FOOD sentinel keeps the "nothing to log" case machine-readable.
const DefaultClassifyPrompt = `Analyze this image and identify any food items. ` +
	`If no food is detected, respond with 'NO_FOOD'. ` +
	`If food is detected, provide the name of the main food item(s) in a concise format.`

// DefaultRecipeSystemPrompt sets the assistant persona for recipe drafts.
const DefaultRecipeSystemPrompt = `You are a helpful cooking assistant. Provide concise, practical recipes.`

// DefaultRecipeUserTemplate is formatted with the detected food name.
const DefaultRecipeUserTemplate = `Create a simple recipe for %s. Include ingredients and brief steps. Keep it under 200 words.`
