// Package contacts is a CardDAV address book plugin: it lists and
// finds contacts on any CardDAV server (Nextcloud, Radicale, Baïkal)
// and decodes the vCards it gets back.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"

	"github.com/kahyalabs/kahya/internal/httpkit"
	"github.com/kahyalabs/kahya/internal/plugin"
)

// Contact is the decoded subset of a vCard the assistant reports.
type Contact struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails,omitempty"`
	Phones []string `json:"phones,omitempty"`
}

// directory is the CardDAV surface the plugin needs. Tests substitute
// a fake returning canned cards.
type directory interface {
	cards(ctx context.Context) ([]vcard.Card, error)
}

// carddavDirectory implements directory over go-webdav's CardDAV
// client, discovering the default address book when none is
// configured.
type carddavDirectory struct {
	client      *carddav.Client
	addressBook string // path; discovered lazily when empty
	logger      *slog.Logger
}

func (d *carddavDirectory) cards(ctx context.Context) ([]vcard.Card, error) {
	if d.addressBook == "" {
		if err := d.discover(ctx); err != nil {
			return nil, err
		}
	}

	query := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{
			Props: []string{
				vcard.FieldFormattedName,
				vcard.FieldEmail,
				vcard.FieldTelephone,
			},
		},
	}

	objects, err := d.client.QueryAddressBook(ctx, d.addressBook, query)
	if err != nil {
		return nil, fmt.Errorf("query address book %s: %w", d.addressBook, err)
	}

	cards := make([]vcard.Card, 0, len(objects))
	for _, o := range objects {
		cards = append(cards, o.Card)
	}
	return cards, nil
}

// discover walks principal → home set → first address book, the
// standard CardDAV bootstrap sequence.
func (d *carddavDirectory) discover(ctx context.Context) error {
	principal, err := d.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return fmt.Errorf("find carddav principal: %w", err)
	}
	homeSet, err := d.client.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return fmt.Errorf("find address book home set: %w", err)
	}
	books, err := d.client.FindAddressBooks(ctx, homeSet)
	if err != nil {
		return fmt.Errorf("find address books: %w", err)
	}
	if len(books) == 0 {
		return fmt.Errorf("no address books found under %s", homeSet)
	}
	d.addressBook = books[0].Path
	d.logger.Debug("address book discovered", "path", d.addressBook)
	return nil
}

// Plugin implements the contacts plugin.
type Plugin struct {
	dir    directory
	logger *slog.Logger
}

// New creates the plugin. The CardDAV client is built in Init from the
// manifest settings.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "contacts" }

func (p *Plugin) Description() string {
	return "Address book: list and find contacts over CardDAV"
}

func (p *Plugin) Actions() []plugin.ActionSpec {
	return []plugin.ActionSpec{
		{
			Name:        "list_contacts",
			Description: "List contacts in the address book",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer"},
				},
			},
		},
		{
			Name:        "find_contact",
			Description: "Find contacts by name",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
				},
				"required": []string{"name"},
			},
		},
	}
}

// Init builds the CardDAV client from settings: url (required),
// username, password, addressbook (optional path; discovered when
// absent).
func (p *Plugin) Init(_ context.Context, settings plugin.Settings, logger *slog.Logger) error {
	p.logger = logger.With("plugin", p.Name())

	if p.dir != nil {
		return nil
	}

	endpoint := settings.String("url")
	if endpoint == "" {
		return fmt.Errorf("contacts plugin requires a url setting")
	}

	var httpClient webdav.HTTPClient = httpkit.NewClient()
	if user := settings.String("username"); user != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient.(*http.Client), user, settings.String("password"))
	}

	client, err := carddav.NewClient(httpClient, endpoint)
	if err != nil {
		return fmt.Errorf("create carddav client: %w", err)
	}

	p.dir = &carddavDirectory{
		client:      client,
		addressBook: settings.String("addressbook"),
		logger:      p.logger,
	}
	return nil
}

func (p *Plugin) Execute(ctx context.Context, req plugin.Request) (*plugin.Result, error) {
	switch req.Action {
	case "list_contacts":
		return p.listContacts(ctx, req.Params)
	case "find_contact":
		return p.findContact(ctx, req.Params)
	default:
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) listContacts(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	limit := plugin.IntParam(params, "limit")
	if limit <= 0 {
		limit = 50
	}

	contacts, err := p.loadContacts(ctx)
	if err != nil {
		return nil, err
	}
	if len(contacts) > limit {
		contacts = contacts[:limit]
	}
	return contactResult(contacts, "No contacts in the address book."), nil
}

func (p *Plugin) findContact(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	name := plugin.StringParam(params, "name")
	if name == "" {
		return nil, fmt.Errorf("find_contact requires a name")
	}

	contacts, err := p.loadContacts(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(name)
	var matches []Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			matches = append(matches, c)
		}
	}
	return contactResult(matches, fmt.Sprintf("No contact matching %q.", name)), nil
}

// loadContacts fetches and decodes all cards.
func (p *Plugin) loadContacts(ctx context.Context) ([]Contact, error) {
	cards, err := p.dir.cards(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(cards))
	for _, card := range cards {
		c := Contact{
			Name:   card.PreferredValue(vcard.FieldFormattedName),
			Emails: card.Values(vcard.FieldEmail),
			Phones: card.Values(vcard.FieldTelephone),
		}
		if c.Name == "" && len(c.Emails) == 0 {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// contactResult formats a contact list, one line per contact.
func contactResult(contacts []Contact, emptyText string) *plugin.Result {
	if len(contacts) == 0 {
		return &plugin.Result{
			Text: emptyText,
			Data: map[string]any{"contacts": []Contact{}},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d contact(s):\n", len(contacts))
	for _, c := range contacts {
		b.WriteString("- ")
		b.WriteString(c.Name)
		if len(c.Emails) > 0 {
			fmt.Fprintf(&b, " <%s>", c.Emails[0])
		}
		if len(c.Phones) > 0 {
			fmt.Fprintf(&b, " %s", c.Phones[0])
		}
		b.WriteString("\n")
	}

	return &plugin.Result{
		Text: strings.TrimRight(b.String(), "\n"),
		Data: map[string]any{"contacts": contacts},
	}
}
