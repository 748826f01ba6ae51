package recorder

import "context"

// Company is the ledger view of an empresa.
type Company struct {
	NIT       string
	Nombre    string
	Direccion string
	Telefono  string
}

// Product is the ledger view of a producto. EmpresaNIT is empty when the
// product has no company.
type Product struct {
	ID         int64
	Codigo     string
	Nombre     string
	EmpresaNIT string
}

// Inventory is the ledger view of an inventario row.
type Inventory struct {
	ID         int64
	EmpresaNIT string
	Producto   string
	Cantidad   int64
	Ubicacion  string
}

// User is the ledger view of a user account.
type User struct {
	Email string
	Role  string
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CompanySaved records empresa_creada or empresa_modificada.
func (r *Recorder) CompanySaved(ctx context.Context, c Company, created bool) error {
	t := TypeCompanyUpdated
	if created {
		t = TypeCompanyCreated
	}
	return r.Record(ctx, t, map[string]any{
		"nit":       c.NIT,
		"nombre":    c.Nombre,
		"direccion": c.Direccion,
		"telefono":  c.Telefono,
	})
}

// CompanyDeleted records empresa_eliminada.
func (r *Recorder) CompanyDeleted(ctx context.Context, c Company) error {
	return r.Record(ctx, TypeCompanyDeleted, map[string]any{
		"nit":    c.NIT,
		"nombre": c.Nombre,
	})
}

// ProductSaved records producto_creado or producto_modificado.
func (r *Recorder) ProductSaved(ctx context.Context, p Product, created bool) error {
	t := TypeProductUpdated
	if created {
		t = TypeProductCreated
	}
	return r.Record(ctx, t, map[string]any{
		"id":      p.ID,
		"codigo":  p.Codigo,
		"nombre":  p.Nombre,
		"empresa": nullable(p.EmpresaNIT),
	})
}

// ProductDeleted records producto_eliminado.
func (r *Recorder) ProductDeleted(ctx context.Context, p Product) error {
	return r.Record(ctx, TypeProductDeleted, map[string]any{
		"id":     p.ID,
		"codigo": p.Codigo,
		"nombre": p.Nombre,
	})
}

// InventorySaved records inventario_actualizado for both creation and update.
func (r *Recorder) InventorySaved(ctx context.Context, i Inventory) error {
	return r.Record(ctx, TypeInventoryUpdated, map[string]any{
		"id":        i.ID,
		"empresa":   nullable(i.EmpresaNIT),
		"producto":  nullable(i.Producto),
		"cantidad":  i.Cantidad,
		"ubicacion": i.Ubicacion,
	})
}

// InventoryDeleted records inventario_eliminado.
func (r *Recorder) InventoryDeleted(ctx context.Context, i Inventory) error {
	return r.Record(ctx, TypeInventoryDeleted, map[string]any{
		"id":       i.ID,
		"empresa":  nullable(i.EmpresaNIT),
		"producto": nullable(i.Producto),
	})
}

// UserCreated records usuario_creado.
func (r *Recorder) UserCreated(ctx context.Context, u User) error {
	return r.Record(ctx, TypeUserCreated, map[string]any{
		"email": u.Email,
		"role":  u.Role,
	})
}

// UserDeleted records usuario_eliminado.
func (r *Recorder) UserDeleted(ctx context.Context, u User) error {
	return r.Record(ctx, TypeUserDeleted, map[string]any{
		"email": u.Email,
		"role":  u.Role,
	})
}
