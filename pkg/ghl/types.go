package ghl

// Location is a GoHighLevel sub-account.
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Website  string `json:"website,omitempty"`
}

// Contact is a CRM contact.
type Contact struct {
	ID          string   `json:"id"`
	LocationID  string   `json:"locationId,omitempty"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	CompanyName string   `json:"companyName,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DateAdded   string   `json:"dateAdded,omitempty"`
}

// Calendar is a booking calendar.
type Calendar struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// ContactSearch filters SearchContacts.
type ContactSearch struct {
	Query string
	Limit int
}

type locationEnvelope struct {
	Location Location `json:"location"`
}

type contactEnvelope struct {
	Contact Contact `json:"contact"`
}

type contactsEnvelope struct {
	Contacts []Contact `json:"contacts"`
}

type calendarsEnvelope struct {
	Calendars []Calendar `json:"calendars"`
}

type errorEnvelope struct {
	Message any `json:"message"`
	Error   any `json:"error"`
}
