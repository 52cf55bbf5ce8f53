package client

// Flow controllers for the multi-step screens. Each flow couples a step
// controller with per-field validation: the UI asks FieldError for inline
// messages, CanAdvance/CanSubmit for control state, and Submit to commit.

import (
	"context"
	"strconv"

	"vacenf.org/internal/forms"
	"vacenf.org/internal/registry"
	"vacenf.org/internal/wizard"
)

// TemperatureFlow drives the daily routine: pick a room, then record one
// temperature per storage unit of that room.
type TemperatureFlow struct {
	client  *Client
	ctrl    *wizard.Controller
	form    *forms.Form
	binding registry.WorkDayBinding
}

// NewTemperatureFlow creates the flow positioned at the room-selection step.
func NewTemperatureFlow(c *Client) *TemperatureFlow {
	ctrl, _ := wizard.New(
		wizard.Step{Name: "sala", Valid: func(d wizard.FormData) bool {
			return d["salaId"] != ""
		}},
		wizard.Step{Name: "temperatura"},
	)
	return &TemperatureFlow{
		client: c,
		ctrl:   ctrl,
		form:   forms.New(),
	}
}

// Step returns the current step name.
func (f *TemperatureFlow) Step() string { return f.ctrl.Step() }

// Binding returns the work-day binding resolved when the room was selected.
func (f *TemperatureFlow) Binding() registry.WorkDayBinding { return f.binding }

// NoStock reports whether the selected room has no storage units. The UI shows
// "nenhum estoque encontrado para esta sala" and keeps submit disabled.
func (f *TemperatureFlow) NoStock() bool {
	return f.ctrl.Step() == "temperatura" && len(f.binding.Estoques) == 0
}

// SelectRoom binds today's work day to the room and advances to the reading
// step. The room's storage units become the temperature fields.
func (f *TemperatureFlow) SelectRoom(ctx context.Context, salaID string) error {
	binding, err := f.client.OpenWorkDay(ctx, salaID)
	if err != nil {
		return err
	}
	f.binding = binding
	f.ctrl.Set("salaId", salaID)
	f.form = forms.New()
	for _, unit := range binding.Estoques {
		f.form.Add(unit.ID, forms.Required)
	}
	f.ctrl.Advance()
	return nil
}

// SetTemperature records the typed value for one storage unit.
func (f *TemperatureFlow) SetTemperature(estoqueID, value string) {
	f.form.Set(estoqueID, value)
	f.ctrl.Set("temp:"+estoqueID, value)
}

// FieldError returns the inline message for a unit's field. Untouched fields
// stay silent.
func (f *TemperatureFlow) FieldError(estoqueID string) string {
	if msg := f.form.FieldError(estoqueID); msg != "" {
		return msg
	}
	if f.form.Touched(estoqueID) {
		if _, err := strconv.ParseFloat(f.form.Value(estoqueID), 64); err != nil {
			return "deve ser um número"
		}
	}
	return ""
}

// CanSubmit reports whether every unit has a parseable temperature. A room
// without storage units has nothing to submit.
func (f *TemperatureFlow) CanSubmit() bool {
	if f.ctrl.Step() != "temperatura" || !f.form.Valid() {
		return false
	}
	if len(f.binding.Estoques) == 0 {
		return false
	}
	for _, unit := range f.binding.Estoques {
		if _, err := strconv.ParseFloat(f.form.Value(unit.ID), 64); err != nil {
			return false
		}
	}
	return true
}

// Submit sends the batch. On success the flow resets to room selection; on
// failure the typed values stay so the user can retry.
func (f *TemperatureFlow) Submit(ctx context.Context) ([]registry.TemperatureReading, error) {
	if !f.CanSubmit() {
		return nil, wizard.ErrInvalidForm
	}
	batch := make([]ReadingPayload, 0, len(f.binding.Estoques))
	for _, unit := range f.binding.Estoques {
		v, _ := strconv.ParseFloat(f.form.Value(unit.ID), 64)
		batch = append(batch, ReadingPayload{EstoqueID: unit.ID, Temperatura: v})
	}
	readings, err := f.client.RecordReadings(ctx, batch)
	if err != nil {
		return nil, err
	}
	_ = f.ctrl.Cancel(true)
	f.form = forms.New()
	f.binding = registry.WorkDayBinding{}
	return readings, nil
}

// Cancel abandons the flow. Once anything was typed the caller must confirm.
func (f *TemperatureFlow) Cancel(confirmed bool) error {
	if err := f.ctrl.Cancel(confirmed); err != nil {
		return err
	}
	f.form = forms.New()
	f.binding = registry.WorkDayBinding{}
	return nil
}

// RegistrationFlow drives the two-step account creation wizard: personal data
// first, address second, then an explicit confirmation.
type RegistrationFlow struct {
	client  *Client
	ctrl    *wizard.Controller
	pessoal *forms.Form
	entrega *forms.Form
	draftID string
}

var personalFields = []string{"nome", "registro", "ocupacao", "email", "nascimento", "cpf", "senha"}

// NewRegistrationFlow creates the flow at the personal-data step.
func NewRegistrationFlow(c *Client) *RegistrationFlow {
	f := &RegistrationFlow{client: c}
	f.reset()
	f.ctrl, _ = wizard.New(
		wizard.Step{Name: "pessoal", Valid: func(wizard.FormData) bool { return f.pessoal.Valid() }},
		wizard.Step{Name: "endereco", Valid: func(wizard.FormData) bool { return f.entrega.Valid() }},
	)
	return f
}

// Step returns the current step name.
func (f *RegistrationFlow) Step() string { return f.ctrl.Step() }

// Set records a field value for the current step.
func (f *RegistrationFlow) Set(field, value string) {
	switch f.ctrl.Step() {
	case "pessoal":
		f.pessoal.Set(field, value)
	case "endereco":
		f.entrega.Set(field, value)
	}
	f.ctrl.Set(field, value)
}

// FieldError returns the inline message for a touched field of either step.
func (f *RegistrationFlow) FieldError(field string) string {
	if msg := f.pessoal.FieldError(field); msg != "" {
		return msg
	}
	return f.entrega.FieldError(field)
}

// CanAdvance reports whether the personal-data step passes validation.
func (f *RegistrationFlow) CanAdvance() bool { return f.ctrl.CurrentValid() }

// Advance stages the personal data on the server and moves to the address
// step. A validation failure keeps the flow in place.
func (f *RegistrationFlow) Advance(ctx context.Context) error {
	if f.ctrl.Step() != "pessoal" {
		return nil
	}
	if !f.pessoal.Valid() {
		return wizard.ErrInvalidForm
	}
	personal := make(map[string]string, len(personalFields))
	for _, name := range personalFields {
		personal[name] = f.pessoal.Value(name)
	}
	draft, err := f.client.StartRegistration(ctx, personal)
	if err != nil {
		return err
	}
	f.draftID = draft.ID
	f.ctrl.Advance()
	return nil
}

// Retreat moves back to the personal step without validating.
func (f *RegistrationFlow) Retreat() { f.ctrl.Retreat() }

// CanSubmit reports whether the address step passes validation.
func (f *RegistrationFlow) CanSubmit() bool {
	return f.ctrl.Step() == "endereco" && f.entrega.Valid()
}

// Submit stages the address and confirms the registration. On success the
// flow resets; on failure the staged draft and typed values survive.
func (f *RegistrationFlow) Submit(ctx context.Context) (registry.Professional, error) {
	if !f.CanSubmit() {
		return registry.Professional{}, wizard.ErrInvalidForm
	}
	address := map[string]string{
		"cep":         f.entrega.Value("cep"),
		"logradouro":  f.entrega.Value("logradouro"),
		"numero":      f.entrega.Value("numero"),
		"complemento": f.entrega.Value("complemento"),
		"bairro":      f.entrega.Value("bairro"),
		"localidade":  f.entrega.Value("localidade"),
		"uf":          f.entrega.Value("uf"),
	}
	if err := f.client.StageAddress(ctx, f.draftID, address); err != nil {
		return registry.Professional{}, err
	}
	prof, err := f.client.ConfirmRegistration(ctx, f.draftID)
	if err != nil {
		return registry.Professional{}, err
	}
	_ = f.ctrl.Cancel(true)
	f.reset()
	return prof, nil
}

// Cancel abandons the flow and deletes any staged draft. Once anything was
// typed the caller must confirm.
func (f *RegistrationFlow) Cancel(ctx context.Context, confirmed bool) error {
	if err := f.ctrl.Cancel(confirmed); err != nil {
		return err
	}
	if f.draftID != "" {
		_ = f.client.CancelRegistration(ctx, f.draftID)
	}
	f.reset()
	return nil
}

func (f *RegistrationFlow) reset() {
	f.draftID = ""
	f.pessoal = forms.New()
	for _, name := range personalFields {
		f.pessoal.Add(name, forms.Required)
	}
	f.entrega = forms.New().
		Add("cep", forms.Required, forms.CEP).
		Add("numero", forms.Required)
}
