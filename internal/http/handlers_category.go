package http

import (
	"errors"
	"net/http"

	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/storage"
)

const msgCategoryInUse = "Esta categoria não pode ser excluída porque possui itens de transação associados."

type categoryJSON struct {
	ID   int64             `json:"id"`
	Name string            `json:"name"`
	Kind core.CategoryKind `json:"kind"`
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Kind: c.Kind}
}

type categoriesView struct {
	pageMeta
	Search     string
	Categories []core.Category
	Form       categoryForm
}

type categoryForm struct {
	ID     int64
	Name   string
	Kind   string
	Errors map[string]string
}

func (s *Server) categoriesView(r *http.Request, form categoryForm) (categoriesView, error) {
	search := sanitizeInput(r.URL.Query().Get("q"))
	cats, err := s.categories.List(r.Context(), ownerFrom(r.Context()), search)
	if err != nil {
		return categoriesView{}, err
	}
	return categoriesView{
		pageMeta:   pageMeta{Title: "Categorias", Nav: "categories"},
		Search:     search,
		Categories: cats,
		Form:       form,
	}, nil
}

// handleListCategories renders the category page, the list partial for
// HTMX searches, or JSON.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	view, err := s.categoriesView(r, categoryForm{})
	if err != nil {
		s.serverError(w, r, "Failed to list categories", err)
		return
	}
	switch {
	case wantsJSON(r):
		out := make([]categoryJSON, 0, len(view.Categories))
		for _, c := range view.Categories {
			out = append(out, toCategoryJSON(c))
		}
		writeJSON(w, http.StatusOK, out)
	case isHTMX(r):
		s.render(w, r, http.StatusOK, "category_list", view)
	default:
		s.render(w, r, http.StatusOK, "categories_page", view)
	}
}

// readCategory parses name and kind from a form or JSON body.
func readCategory(r *http.Request) (core.Category, categoryForm, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.Category{}, categoryForm{}, err
	}
	form := categoryForm{Name: p.Get("name"), Kind: p.Get("kind")}
	c := core.Category{Name: form.Name}
	// an unknown kind is left empty and reported by validation
	c.Kind, _ = core.ParseCategoryKind(form.Kind)
	return c, form, nil
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	c, form, err := readCategory(r)
	if err != nil {
		ErrorFor(r, http.StatusBadRequest, "Formato de requisição inválido").Write(w)
		return
	}
	created, err := s.categories.Create(r.Context(), ownerFrom(r.Context()), c)
	if err != nil {
		s.categoryWriteError(w, r, form, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentCategory).InfoContext(r.Context(), "Category created",
		log.FieldCategoryID, created.ID, "name", created.Name, "kind", created.Kind)

	switch {
	case wantsJSON(r):
		writeJSON(w, http.StatusCreated, toCategoryJSON(created))
	case isHTMX(r):
		s.categoryListResponse(w, r, "Categoria criada: "+created.Name)
	default:
		http.Redirect(w, r, "/categories", http.StatusSeeOther)
	}
}

func (s *Server) handleEditCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		ErrorFor(r, http.StatusNotFound, "Categoria não encontrada").Write(w)
		return
	}
	c, err := s.categories.Get(r.Context(), ownerFrom(r.Context()), id)
	if errors.Is(err, storage.ErrNotFound) {
		ErrorFor(r, http.StatusNotFound, "Categoria não encontrada").Write(w)
		return
	}
	if err != nil {
		s.serverError(w, r, "Failed to load category", err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, toCategoryJSON(c))
		return
	}
	s.render(w, r, http.StatusOK, "category_edit_page", categoriesView{
		pageMeta: pageMeta{Title: "Editar categoria", Nav: "categories"},
		Form:     categoryForm{ID: c.ID, Name: c.Name, Kind: string(c.Kind)},
	})
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		ErrorFor(r, http.StatusNotFound, "Categoria não encontrada").Write(w)
		return
	}
	c, form, err := readCategory(r)
	if err != nil {
		ErrorFor(r, http.StatusBadRequest, "Formato de requisição inválido").Write(w)
		return
	}
	form.ID = id

	updated, err := s.categories.Update(r.Context(), ownerFrom(r.Context()), id, c)
	if err != nil {
		s.categoryWriteError(w, r, form, err)
		return
	}

	switch {
	case wantsJSON(r):
		writeJSON(w, http.StatusOK, toCategoryJSON(updated))
	case isHTMX(r):
		NewHTMXResponse().
			Redirect("/categories").
			TriggerCategoriesChanged().
			TriggerSuccessNotification("Categoria atualizada").
			Write(w)
	default:
		http.Redirect(w, r, "/categories", http.StatusSeeOther)
	}
}

// handleDeleteCategory refuses with 409 while items still reference the
// category.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		ErrorFor(r, http.StatusNotFound, "Categoria não encontrada").Write(w)
		return
	}
	err := s.categories.Delete(r.Context(), ownerFrom(r.Context()), id)
	switch {
	case errors.Is(err, storage.ErrCategoryInUse):
		if isHTMX(r) {
			ErrorResponse(http.StatusConflict, msgCategoryInUse).TriggerErrorNotification(msgCategoryInUse).Write(w)
			return
		}
		ErrorFor(r, http.StatusConflict, msgCategoryInUse).Write(w)
		return
	case errors.Is(err, storage.ErrNotFound):
		ErrorFor(r, http.StatusNotFound, "Categoria não encontrada").Write(w)
		return
	case err != nil:
		s.serverError(w, r, "Failed to delete category", err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentCategory).InfoContext(r.Context(), "Category deleted",
		log.FieldCategoryID, id)

	switch {
	case wantsJSON(r):
		w.WriteHeader(http.StatusNoContent)
	case isHTMX(r):
		s.categoryListResponse(w, r, "Categoria excluída")
	default:
		http.Redirect(w, r, "/categories", http.StatusSeeOther)
	}
}

// categoryWriteError maps a failed create or update to a response.
func (s *Server) categoryWriteError(w http.ResponseWriter, r *http.Request, form categoryForm, err error) {
	var verrs core.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		form.Errors = verrs.Map()
	case errors.Is(err, storage.ErrDuplicateCategory):
		verrs = verrs.Add("name", "Já existe uma categoria com este nome")
		form.Errors = verrs.Map()
	case errors.Is(err, storage.ErrCategoryKindInUse):
		verrs = verrs.Add("kind", "O tipo não pode mudar enquanto houver itens nesta categoria")
		form.Errors = verrs.Map()
	case errors.Is(err, storage.ErrNotFound):
		ErrorFor(r, http.StatusNotFound, "Categoria não encontrada").Write(w)
		return
	default:
		s.serverError(w, r, "Failed to save category", err)
		return
	}

	if wantsJSON(r) {
		ValidationErrorResponse(r, verrs).Write(w)
		return
	}
	view, listErr := s.categoriesView(r, form)
	if listErr != nil {
		s.serverError(w, r, "Failed to list categories", listErr)
		return
	}
	name := "category_form"
	if !isHTMX(r) {
		name = "categories_page"
		if form.ID > 0 {
			name = "category_edit_page"
			view.Title = "Editar categoria"
		}
	}
	s.render(w, r, http.StatusUnprocessableEntity, name, view)
}

func (s *Server) categoryListResponse(w http.ResponseWriter, r *http.Request, message string) {
	view, err := s.categoriesView(r, categoryForm{})
	if err != nil {
		s.serverError(w, r, "Failed to list categories", err)
		return
	}
	body, err := s.renderString("category_list", view)
	if err != nil {
		s.serverError(w, r, "Failed to render categories", err)
		return
	}
	NewHTMXResponse().
		TriggerCategoriesChanged().
		TriggerFormReset().
		TriggerSuccessNotification(message).
		Header("HX-Retarget", "#category-list").
		Header("HX-Reswap", "outerHTML").
		BodyHTML(body).
		Write(w)
}
