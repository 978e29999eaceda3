package controllers

import (
	"strconv"

	"campusdesk_go/middleware"
	"campusdesk_go/models"
	"campusdesk_go/services/fines"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
)

type FineController struct {
	svc *fines.Service
}

func NewFineController(svc *fines.Service) *FineController {
	return &FineController{svc: svc}
}

type BulkFinesRequest struct {
	Fines []fines.NewFine `json:"fines" validate:"required,min=1,dive"`
}

func fineID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// BulkAdd inserts the fines and notifies each student.
func (fc *FineController) BulkAdd(c *fiber.Ctx) error {
	var req BulkFinesRequest
	if ok, err := utils.ParseAndValidate(c, &req); !ok {
		return err
	}
	for i := range req.Fines {
		req.Fines[i].Enrollment = normalizeEnrollment(req.Fines[i].Enrollment)
	}
	created, err := fc.svc.BulkAdd(c.UserContext(), req.Fines)
	if err != nil {
		return respondServiceError(c, err, "Failed to add fines")
	}
	return utils.SuccessMap(c, fiber.StatusCreated, "Fines added", fiber.Map{"count": len(created), "fines": created})
}

func (fc *FineController) All(c *fiber.Ctx) error {
	list, err := fc.svc.All(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch fines")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"fines": list})
}

func (fc *FineController) ForStudent(c *fiber.Ctx) error {
	list, err := fc.svc.ForEnrollment(c.UserContext(), normalizeEnrollment(c.Params("enrollment")))
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch fines")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{"fines": list})
}

// PublicCheck reports only the count and outstanding total of unpaid fines.
func (fc *FineController) PublicCheck(c *fiber.Ctx) error {
	enrollment := normalizeEnrollment(c.Params("enrollment"))
	list, err := fc.svc.ForEnrollment(c.UserContext(), enrollment)
	if err != nil {
		return respondServiceError(c, err, "Failed to fetch fines")
	}
	count, due := 0, 0.0
	for i := range list {
		if left := fines.Outstanding(&list[i]); left > 0 {
			count++
			due += left
		}
	}
	return utils.SuccessMap(c, fiber.StatusOK, "", fiber.Map{
		"enrollment":  enrollment,
		"has_fines":   count > 0,
		"count":       count,
		"outstanding": utils.Round2(due),
	})
}

func (fc *FineController) Update(c *fiber.Ctx) error {
	id, ok := fineID(c)
	if !ok {
		return badRequest(c, "Invalid fine ID")
	}
	var req fines.Update
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	fine, err := fc.svc.Update(c.UserContext(), id, req)
	if err != nil {
		return respondServiceError(c, err, "Failed to update fine")
	}
	return utils.Success(c, "Fine updated", fine)
}

func (fc *FineController) Delete(c *fiber.Ctx) error {
	id, ok := fineID(c)
	if !ok {
		return badRequest(c, "Invalid fine ID")
	}
	if err := fc.svc.Delete(c.UserContext(), id); err != nil {
		return respondServiceError(c, err, "Failed to delete fine")
	}
	return utils.Success(c, "Fine deleted", nil)
}

// Checkout opens a Midtrans payment for the outstanding amount. Students may only pay their own fines.
func (fc *FineController) Checkout(c *fiber.Ctx) error {
	id, ok := fineID(c)
	if !ok {
		return badRequest(c, "Invalid fine ID")
	}
	if claims, ok := c.Locals("claims").(*middleware.Claims); ok && claims.Role == models.RoleStudent {
		fine, err := fc.svc.Get(c.UserContext(), id)
		if err != nil {
			return respondServiceError(c, err, "Failed to fetch fine")
		}
		if fine.Enrollment != normalizeEnrollment(claims.Enrollment) {
			return utils.Error(c, fiber.StatusForbidden, "Access denied")
		}
	}

	session, err := fc.svc.StartCheckout(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err, "Failed to start payment")
	}
	return utils.SuccessMap(c, fiber.StatusOK, "Checkout created", fiber.Map{
		"order_id":     session.OrderID,
		"amount":       session.Amount,
		"token":        session.Token,
		"redirect_url": session.RedirectURL,
	})
}
