package models

// DefaultElementType is the element type reported for hosts.
const DefaultElementType = "SERVER"

// Attribute is a name/value pair describing an element.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Relation links an element to another one by its fully qualified name.
type Relation struct {
	FQN string `json:"fqn"`
}

// Element is the identity every batch is reported under, together with the
// metadata collected for it. The zero value has no identity.
type Element struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Location   string      `json:"location,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Tags       []Attribute `json:"tags,omitempty"`
	Relations  []Relation  `json:"relations,omitempty"`
}

// NewElement creates an element for the given identity.
func NewElement(id, location string) *Element {
	return &Element{
		ID:       id,
		Name:     id,
		Type:     DefaultElementType,
		Location: location,
	}
}

// AddAttribute sets an attribute, replacing any previous value for name.
func (e *Element) AddAttribute(name, value string) {
	e.Attributes = upsert(e.Attributes, name, value)
}

// AddTag sets a tag, replacing any previous value for name.
func (e *Element) AddTag(name, value string) {
	e.Tags = upsert(e.Tags, name, value)
}

// AddRelation records a relation once.
func (e *Element) AddRelation(fqn string) {
	for _, r := range e.Relations {
		if r.FQN == fqn {
			return
		}
	}
	e.Relations = append(e.Relations, Relation{FQN: fqn})
}

// Attribute returns the value of the named attribute.
func (e *Element) Attribute(name string) (string, bool) {
	return lookup(e.Attributes, name)
}

// Tag returns the value of the named tag.
func (e *Element) Tag(name string) (string, bool) {
	return lookup(e.Tags, name)
}

// Clone returns a deep copy safe to serialize while the original keeps changing.
func (e *Element) Clone() *Element {
	c := *e
	c.Attributes = append([]Attribute(nil), e.Attributes...)
	c.Tags = append([]Attribute(nil), e.Tags...)
	c.Relations = append([]Relation(nil), e.Relations...)
	return &c
}

func upsert(list []Attribute, name, value string) []Attribute {
	for i := range list {
		if list[i].Name == name {
			list[i].Value = value
			return list
		}
	}
	return append(list, Attribute{Name: name, Value: value})
}

func lookup(list []Attribute, name string) (string, bool) {
	for _, a := range list {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// ElementPayload is one element of the ingestion payload.
type ElementPayload struct {
	*Element
	Samples []Sample `json:"samples"`
}

// Payload is the body posted to the ingestion endpoint.
type Payload []ElementPayload

// NewPayload wraps an element and its pending samples.
func NewPayload(e *Element, samples []Sample) Payload {
	return Payload{{Element: e, Samples: samples}}
}
