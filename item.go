package zmailbox

// Item is a mirrored entity with a stable id: a *Folder or a *Tag.
type Item interface {
	ID() string
	Type() ItemType
	item()
}

func (*Folder) item() {}
func (*Tag) item()    {}
