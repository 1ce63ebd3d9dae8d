package models

import "sort"

// SortStudentIDs orders ids by grade, class, then seat number.
func SortStudentIDs(ids []StudentID) {
	sort.Slice(ids, func(i, j int) bool {
		return Less(ids[i], ids[j])
	})
}

func Less(a, b StudentID) bool {
	if a.Grade != b.Grade {
		return a.Grade < b.Grade
	}
	if a.Class != b.Class {
		return a.Class < b.Class
	}
	return a.Seq < b.Seq
}
