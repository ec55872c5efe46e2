package filtering

// Keyword lists are matched case-insensitively as substrings.
var (
	FilenameKeywords = []string{
		"cv", "resume", "curriculum", "zyciorys", "życiorys",
		"aplikacja", "application", "lebenslauf", "bewerbung",
		"candidate", "kandydat",
	}

	SubjectKeywords = []string{
		"cv", "resume", "aplikacja", "rekrutacja", "stanowisko", "oferta pracy",
		"application", "job", "position", "vacancy", "career",
		"lebenslauf", "bewerbung", "stelle", "kandidatur",
	}

	BodyKeywords = []string{
		"w załączeniu cv", "w załączniku cv", "załączam cv", "moje cv",
		"aplikuję na stanowisko", "zainteresowany ofertą", "aplikacja na",
		"attached resume", "my resume", "my cv", "applying for",
		"interested in the position", "job application", "i am applying",
		"bewerbung für", "meine bewerbung",
	}

	SenderBlacklist = []string{
		"noreply@", "no-reply@", "invoice@", "billing@", "finance@",
		"newsletter@", "marketing@", "notifications@", "support@",
		"automated@", "donotreply@",
	}

	FilenameBlacklist = []string{
		"invoice", "faktura", "rachunek", "bill", "receipt", "paragon",
		"report", "raport", "contract", "umowa", "agreement", "statement",
		"wyciąg", "ticket", "bilet", "confirmation", "potwierdzenie",
		"order", "zamówienie",
	}

	SubjectBlacklist = []string{
		"invoice", "faktura", "payment", "płatność", "receipt", "paragon",
		"newsletter", "subscription", "notification", "reminder", "przypomnienie",
	}
)
