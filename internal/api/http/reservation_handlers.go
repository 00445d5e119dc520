package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/reservation"
)

// MountReservations registers the booking slot lock routes. The caller's
// account id is the reservation holder.
func MountReservations(r chi.Router, lock *reservation.Lock) {
	r.Post("/", ReserveSlotHandler(lock))
	r.Delete("/", ReleaseSlotHandler(lock))
	r.Get("/status", SlotStatusHandler(lock))
	r.Get("/mine", MySlotsHandler(lock))
	r.Delete("/mine", ReleaseMySlotsHandler(lock))
}

func slotFromQuery(r *http.Request) reservation.Slot {
	q := r.URL.Query()
	return reservation.Slot{
		TimeslotID:   q.Get("timeslotId"),
		Date:         q.Get("date"),
		InstructorID: q.Get("instructorId"),
	}
}

// POST /reservations {"timeslotId": "...", "date": "YYYY-MM-DD", "instructorId": "..."}
func ReserveSlotHandler(lock *reservation.Lock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var slot reservation.Slot
		if err := decode(w, r, &slot); err != nil {
			fail(w, r, err)
			return
		}
		out, err := lock.Reserve(r.Context(), slot, accountID(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		if !out.Reserved {
			writeJSON(w, http.StatusConflict, envelope{Success: false, Error: "slot is reserved by another user", Data: out})
			return
		}
		msg := "slot reserved"
		if out.Renewed {
			msg = "reservation renewed"
		}
		ok(w, http.StatusOK, msg, out)
	}
}

// DELETE /reservations?timeslotId=&date=&instructorId=
func ReleaseSlotHandler(lock *reservation.Lock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		released, err := lock.Release(r.Context(), slotFromQuery(r), accountID(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		if !released {
			writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "you hold no reservation for this slot"})
			return
		}
		ok(w, http.StatusOK, "slot released", nil)
	}
}

func SlotStatusHandler(lock *reservation.Lock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, held, err := lock.Status(r.Context(), slotFromQuery(r))
		if err != nil {
			fail(w, r, err)
			return
		}
		data := map[string]any{"reserved": held}
		if held {
			data["reservation"] = res
		}
		ok(w, http.StatusOK, "", data)
	}
}

func MySlotsHandler(lock *reservation.Lock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := lock.Mine(r.Context(), accountID(r))
		reply(w, r, http.StatusOK, "", out, err)
	}
}

func ReleaseMySlotsHandler(lock *reservation.Lock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := lock.ReleaseAll(r.Context(), accountID(r))
		reply(w, r, http.StatusOK, "reservations released", map[string]int{"released": n}, err)
	}
}
