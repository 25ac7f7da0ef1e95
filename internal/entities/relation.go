package entities

import "fmt"

// Cardinality is the number of target records a relation can point at
type Cardinality int

const (
	ToOne Cardinality = iota
	ToMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case ToOne:
		return "to_one"
	case ToMany:
		return "to_many"
	default:
		return "unknown"
	}
}

// KeyLocation tells which side of a relation stores the foreign key
type KeyLocation int

const (
	// KeySelf means the entity owning the relation stores the key (scalar for
	// to_one, array of ids for to_many).
	KeySelf KeyLocation = iota
	// KeyTarget means every target record stores the owner's id in a scalar key.
	KeyTarget
)

// String returns the string representation of the key location
func (k KeyLocation) String() string {
	switch k {
	case KeySelf:
		return "self"
	case KeyTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Relation represents a relation definition of an entity type
// Example: study.comments -> comment, key "study_comments_fk" stored on comment,
// inverse "study".
type Relation struct {
	Name        string      // Relation name (e.g., "comments", "study")
	Cardinality Cardinality // to_one or to_many
	TargetType  string      // Target entity type (e.g., "comment")
	ForeignKey  string      // Attribute holding the key(s)
	KeyLocation KeyLocation // Which side holds ForeignKey
	Inverse     string      // Relation name on the target type (optional)
}

// String returns a string representation of the relation
// Format: name(to_many -> target, key@location)
func (r *Relation) String() string {
	return fmt.Sprintf("%s(%s -> %s, %s@%s)", r.Name, r.Cardinality, r.TargetType, r.ForeignKey, r.KeyLocation)
}

// Validate checks if the relation definition is internally consistent
func (r *Relation) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("relation name is required")
	}
	if r.TargetType == "" {
		return fmt.Errorf("relation %s: target type is required", r.Name)
	}
	if r.ForeignKey == "" {
		return fmt.Errorf("relation %s: foreign key is required", r.Name)
	}
	if r.Cardinality != ToOne && r.Cardinality != ToMany {
		return fmt.Errorf("relation %s: invalid cardinality", r.Name)
	}
	if r.KeyLocation != KeySelf && r.KeyLocation != KeyTarget {
		return fmt.Errorf("relation %s: invalid key location", r.Name)
	}
	return nil
}

// HoldsArray reports whether the owning entity stores an array of keys
func (r *Relation) HoldsArray() bool {
	return r.Cardinality == ToMany && r.KeyLocation == KeySelf
}

// IsBidirectional reports whether the relation declares an inverse
func (r *Relation) IsBidirectional() bool {
	return r.Inverse != ""
}
