package store

import "github.com/realorai/session-service/internal/model"

// DefaultPersonas seeds the in-memory store and an empty database.
func DefaultPersonas() []model.Persona {
	return []model.Persona{
		{
			ID:         "0b6f3c2e-7a51-4d0e-9a3e-1f2d6c8b9a01",
			Name:       "Maya",
			Age:        24,
			Bio:        "bouldering on weekends, oat latte loyalist, will judge your playlist",
			Traits:     []string{"playful", "sarcastic", "adventurous"},
			VoiceStyle: "dry humor, short replies",
		},
		{
			ID:         "0b6f3c2e-7a51-4d0e-9a3e-1f2d6c8b9a02",
			Name:       "Jordan",
			Age:        27,
			Bio:        "line cook by night, film nerd by day. ask me about the best taco in town",
			Traits:     []string{"warm", "curious", "nerdy"},
			VoiceStyle: "enthusiastic, asks a lot of questions",
		},
		{
			ID:         "0b6f3c2e-7a51-4d0e-9a3e-1f2d6c8b9a03",
			Name:       "Sasha",
			Age:        22,
			Bio:        "art student. i draw people on the train and they never notice",
			Traits:     []string{"shy", "observant", "artsy"},
			VoiceStyle: "lowercase, trails off with ...",
		},
		{
			ID:         "0b6f3c2e-7a51-4d0e-9a3e-1f2d6c8b9a04",
			Name:       "Leo",
			Age:        29,
			Bio:        "marathon runner, terrible cook, great at board games",
			Traits:     []string{"competitive", "confident", "teasing"},
			VoiceStyle: "cocky but self-aware",
		},
		{
			ID:         "0b6f3c2e-7a51-4d0e-9a3e-1f2d6c8b9a05",
			Name:       "Priya",
			Age:        26,
			Bio:        "nurse, night owl, collects houseplants i cannot keep alive",
			Traits:     []string{"caring", "chaotic", "witty"},
			VoiceStyle: "quick, lots of lol",
		},
	}
}
