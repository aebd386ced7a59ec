package federation

import "github.com/tabworks/authflow/domain"

// elevatedScopes maps provider/service/level to the OAuth scopes a
// permission-elevation flow requests on top of the baseline.
var elevatedScopes = map[domain.Provider]map[string]map[string][]string{
	domain.ProviderGoogle: {
		"calendar": {
			"readonly": {"https://www.googleapis.com/auth/calendar.readonly"},
			"full":     {"https://www.googleapis.com/auth/calendar"},
		},
		"contacts": {
			"readonly": {"https://www.googleapis.com/auth/contacts.readonly"},
			"full":     {"https://www.googleapis.com/auth/contacts"},
		},
		"mail": {
			"readonly": {"https://www.googleapis.com/auth/gmail.readonly"},
			"full":     {"https://mail.google.com/"},
		},
	},
	domain.ProviderMicrosoft: {
		"calendar": {
			"readonly": {"Calendars.Read"},
			"full":     {"Calendars.ReadWrite"},
		},
		"contacts": {
			"readonly": {"Contacts.Read"},
			"full":     {"Contacts.ReadWrite"},
		},
		"mail": {
			"readonly": {"Mail.Read"},
			"full":     {"Mail.ReadWrite"},
		},
	},
}

// ElevatedScopes resolves the scopes for one service and level of one
// provider. Unknown combinations return ErrUnknownScope; notably Facebook
// has no elevatable services.
func ElevatedScopes(provider domain.Provider, service, level string) ([]string, error) {
	services, ok := elevatedScopes[provider]
	if !ok {
		return nil, ErrUnknownScope
	}
	levels, ok := services[service]
	if !ok {
		return nil, ErrUnknownScope
	}
	scopes, ok := levels[level]
	if !ok {
		return nil, ErrUnknownScope
	}
	return scopes, nil
}
