package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"content_blocks/internal/domain/models"
	"content_blocks/internal/transport/http/dto"
	"content_blocks/internal/transport/http/dto/response"

	"github.com/labstack/echo/v4"
)

const homePageKey = "home"

// GetBlocks godoc
// @Summary Блоки страницы для рендера
// @Description Без draft отдает последний опубликованный снимок, при его отсутствии активный черновик. draft=true требует роль admin.
// @Tags pages
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Param draft query bool false "Читать черновик"
// @Param locale query string false "Локаль"
// @Success 200 {object} dto.BlocksResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /api/v1/pages/{id}/blocks [get]
func (r *Routers) GetBlocks(c echo.Context) error {
	const op = "http.routers.GetBlocks"

	draft, _ := strconv.ParseBool(c.QueryParam("draft"))
	if draft {
		principal, ok := PrincipalFrom(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "authentication required"))
		}
		if !principal.Role.AtLeast(models.RoleAdmin) {
			return c.JSON(http.StatusForbidden, response.ErrorResponseWithDetails("forbidden", "admin role required"))
		}
	}

	blocks, err := r.PageService.GetBlocks(c.Request().Context(), c.Param("id"), draft, c.QueryParam("locale"))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.BlocksResponse{Blocks: blocks})
}

// ExportBlocks godoc
// @Summary Экспорт всех блоков страницы
// @Tags pages
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Success 200 {object} dto.ExportBlocksResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/pages/{id}/export [get]
func (r *Routers) ExportBlocks(c echo.Context) error {
	const op = "http.routers.ExportBlocks"

	blocks, err := r.PageService.ExportBlocks(c.Request().Context(), c.Param("id"))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.ExportBlocksResponse{Blocks: blocks})
}

// ImportBlocks godoc
// @Summary Импорт блоков с полной заменой черновика
// @Tags pages
// @Accept json
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Param request body dto.ImportBlocksRequest true "Блоки"
// @Success 200 {object} dto.ImportBlocksResponse
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/import [post]
func (r *Routers) ImportBlocks(c echo.Context) error {
	const op = "http.routers.ImportBlocks"

	var req dto.ImportBlocksRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return err
	}

	n, err := r.PageService.ImportBlocks(c.Request().Context(), c.Param("id"), req.Blocks, actorID(c))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.ImportBlocksResponse{OK: true, Imported: n})
}

// ReorderBlocks godoc
// @Summary Перестановка блоков
// @Description Проставляет position = index*10 в переданном порядке
// @Tags pages
// @Accept json
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Param request body dto.ReorderRequest true "Новый порядок"
// @Success 200 {object} dto.ReorderResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/blocks/reorder [patch]
func (r *Routers) ReorderBlocks(c echo.Context) error {
	const op = "http.routers.ReorderBlocks"

	var req dto.ReorderRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return err
	}

	items, err := r.PageService.Reorder(c.Request().Context(), c.Param("id"), req.IDs(), actorID(c))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.ReorderResponse{Items: items})
}

// PatchBlock godoc
// @Summary Частичное обновление блока
// @Tags pages
// @Accept json
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Param block_id path int true "ID блока"
// @Param request body dto.PatchBlockRequest true "Изменения"
// @Success 200 {object} models.Block
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/blocks/{block_id} [patch]
func (r *Routers) PatchBlock(c echo.Context) error {
	return r.patchBlock(c, c.Param("id"), c.Param("block_id"))
}

// PatchHomeSection godoc
// @Summary Обновление секции главной страницы
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "ID блока"
// @Param request body dto.PatchBlockRequest true "Изменения"
// @Success 200 {object} models.Block
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/admin/home/sections/{id} [patch]
func (r *Routers) PatchHomeSection(c echo.Context) error {
	return r.patchBlock(c, homePageKey, c.Param("id"))
}

func (r *Routers) patchBlock(c echo.Context, ref, rawBlockID string) error {
	const op = "http.routers.PatchBlock"

	blockID, err := strconv.ParseInt(rawBlockID, 10, 64)
	if err != nil || blockID <= 0 {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "invalid block id"))
	}

	var req dto.PatchBlockRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return err
	}

	block, err := r.PageService.PatchBlock(c.Request().Context(), ref, blockID, req, actorID(c))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, block)
}

// Publish godoc
// @Summary Публикация страницы
// @Description Создает снимок с версией max+1. Пустой blocks публикует активный черновик.
// @Tags pages
// @Accept json
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Param request body dto.PublishRequest false "Снимок"
// @Success 200 {object} dto.PublishResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/publish [post]
func (r *Routers) Publish(c echo.Context) error {
	const op = "http.routers.Publish"

	var req dto.PublishRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return err
	}

	version, err := r.PageService.Publish(c.Request().Context(), c.Param("id"), req.Blocks, actorID(c))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.PublishResponse{OK: true, Version: version})
}

// Rollback godoc
// @Summary Откат к предыдущей публикации
// @Tags pages
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Success 200 {object} dto.RollbackResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 412 {object} response.ErrorResponse "Меньше двух публикаций"
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/rollback [post]
func (r *Routers) Rollback(c echo.Context) error {
	const op = "http.routers.Rollback"

	restored, err := r.PageService.Rollback(c.Request().Context(), c.Param("id"), actorID(c))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.RollbackResponse{OK: true, RestoredVersion: restored})
}

// ListPublications godoc
// @Summary История публикаций
// @Tags pages
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Param limit query int false "Сколько последних версий"
// @Success 200 {object} dto.PublicationsResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/publications [get]
func (r *Routers) ListPublications(c echo.Context) error {
	const op = "http.routers.ListPublications"

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	pubs, err := r.PageService.ListPublications(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.PublicationsResponse{Publications: pubs})
}

// Backup godoc
// @Summary Резервная копия блоков в файловое хранилище
// @Tags pages
// @Produce json
// @Param id path string true "ID или ключ страницы"
// @Success 201 {object} dto.BackupResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/pages/{id}/backup [post]
func (r *Routers) Backup(c echo.Context) error {
	const op = "http.routers.Backup"

	resp, err := r.PageService.BackupBlocks(c.Request().Context(), c.Param("id"), actorID(c))
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusCreated, resp)
}

// ListAudit godoc
// @Summary Журнал аудита
// @Tags admin
// @Produce json
// @Param entity query string false "Тип сущности (page, user)"
// @Param entity_id query string false "ID сущности"
// @Param limit query int false "Количество записей"
// @Success 200 {object} dto.AuditResponse
// @Security ApiKeyAuth
// @Router /api/v1/admin/audit [get]
func (r *Routers) ListAudit(c echo.Context) error {
	const op = "http.routers.ListAudit"

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	records, err := r.PageService.ListAudit(c.Request().Context(), c.QueryParam("entity"), c.QueryParam("entity_id"), limit)
	if err != nil {
		return r.writeError(c, op, err)
	}

	return c.JSON(http.StatusOK, dto.AuditResponse{Records: records})
}

// bindAndValidate ошибки отдаются как *echo.HTTPError с телом ErrorResponse
func (r *Routers) bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		r.log.Warn("failed to bind request", slog.String("path", c.Path()), slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, response.ErrorResponseWithDetails("validation_failed", err.Error()))
	}

	return nil
}
